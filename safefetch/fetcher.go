package safefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html/charset"
)

const sniffLen = 512

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Document is a fetched HTML page decoded to UTF-8.
type Document struct {
	URL         string
	ContentType string
	Charset     string
	StatusCode  int
	Body        string
	Size        int
	Redirects   int
}

// Fetcher performs bounded GET requests against validated URLs and follows
// redirects only after validating their targets again.
type Fetcher struct {
	policy    Policy
	sanitizer *Sanitizer
	client    *http.Client
	logger    *slog.Logger
}

type options struct {
	resolver Resolver
	dial     DialFunc
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*options)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithDialer sets the function used to open TCP connections. With pinning on
// it receives already vetted IP addresses.
func WithDialer(d DialFunc) Option {
	return func(o *options) { o.dial = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a Fetcher enforcing policy.
func New(policy Policy, opts ...Option) (*Fetcher, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch policy: %w", err)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	hosts := NewHostValidator(o.resolver, policy.ResolveTimeout)
	return &Fetcher{
		policy:    policy,
		sanitizer: NewSanitizer(policy, hosts),
		client: &http.Client{
			Transport: newTransport(policy, hosts, o.dial),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: o.logger,
	}, nil
}

// FetchURL sanitizes raw and fetches it.
func (f *Fetcher) FetchURL(ctx context.Context, raw string) (*Document, error) {
	target, err := f.sanitizer.Sanitize(ctx, raw)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, target)
}

// Fetch retrieves target. At most Policy.MaxRedirects redirects are
// followed and every redirect target goes through Sanitize first.
func (f *Fetcher) Fetch(ctx context.Context, target *ValidatedURL) (*Document, error) {
	if target == nil || target.u == nil {
		return nil, newError(CodeMalformedURL, nil, "target was not sanitized")
	}
	current := target
	for redirects := 0; ; redirects++ {
		doc, location, err := f.fetchOnce(ctx, current)
		if err != nil {
			return nil, err
		}
		if location == "" {
			doc.Redirects = redirects
			return doc, nil
		}
		if redirects >= f.policy.MaxRedirects {
			return nil, newError(CodeTooManyRedirects, nil, "limit of %d reached at %s", f.policy.MaxRedirects, current)
		}
		f.logger.Debug("following redirect", "from", current.String(), "to", location)
		current, err = f.sanitizer.Sanitize(ctx, location)
		if err != nil {
			return nil, err
		}
	}
}

// fetchOnce issues a single GET. It returns either a document or the absolute
// redirect location.
func (f *Fetcher) fetchOnce(ctx context.Context, target *ValidatedURL) (*Document, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.policy.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", newError(CodeMalformedURL, err, "build request")
	}
	req.Header.Set("User-Agent", f.policy.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if isRedirect(resp.StatusCode) {
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, "", newError(CodeNetworkError, nil, "status %d without Location", resp.StatusCode)
		}
		ref, err := url.Parse(location)
		if err != nil {
			return nil, "", newError(CodeMalformedURL, err, "redirect location %q", location)
		}
		return nil, target.URL().ResolveReference(ref).String(), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", newError(CodeNetworkError, nil, "upstream responded with status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := parseMediaType(contentType)
	if contentType != "" && !isHTMLMediaType(mediaType) {
		return nil, "", newError(CodeUnsupportedContentType, nil, "%q", mediaType)
	}
	if resp.ContentLength > f.policy.MaxBodyBytes {
		return nil, "", newError(CodeContentTooLarge, nil, "declared %d bytes, limit %d", resp.ContentLength, f.policy.MaxBodyBytes)
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	body := io.LimitReader(resp.Body, f.policy.MaxBodyBytes+1)
	if contentType == "" {
		if _, err := io.CopyN(buf, body, sniffLen); err != nil && !errors.Is(err, io.EOF) {
			return nil, "", classifyTransportError(ctx, err)
		}
		contentType = http.DetectContentType(buf.Bytes())
		if mediaType = parseMediaType(contentType); !isHTMLMediaType(mediaType) {
			return nil, "", newError(CodeUnsupportedContentType, nil, "sniffed %q", mediaType)
		}
	}
	if _, err := io.Copy(buf, body); err != nil {
		return nil, "", classifyTransportError(ctx, err)
	}
	if int64(buf.Len()) > f.policy.MaxBodyBytes {
		return nil, "", newError(CodeContentTooLarge, nil, "body exceeds %d bytes", f.policy.MaxBodyBytes)
	}

	text, name := decodeBody(buf.Bytes(), contentType)
	return &Document{
		URL:         target.String(),
		ContentType: mediaType,
		Charset:     name,
		StatusCode:  resp.StatusCode,
		Body:        text,
		Size:        buf.Len(),
	}, "", nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func parseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Tolerate broken parameters as long as the type itself is readable.
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isHTMLMediaType(mediaType string) bool {
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decodeBody converts raw to UTF-8 using the declared charset, a BOM, or a
// <meta charset> in the first kilobyte.
func decodeBody(raw []byte, contentType string) (string, string) {
	enc, name, _ := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" || enc == nil {
		return string(raw), "utf-8"
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), "utf-8"
	}
	return string(decoded), name
}

// classifyTransportError maps a transport failure to the taxonomy. An expired
// hop deadline is a timeout even when it surfaced inside the pinned dialer.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var fe *Error
		if errors.As(err, &fe) && fe.Code.IsValidation() {
			return fe
		}
		return newError(CodeTimeout, err, "request")
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeTimeout, err, "request")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(CodeTimeout, err, "request")
	}
	return newError(CodeNetworkError, err, "request")
}
