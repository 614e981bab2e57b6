package safefetch

import (
	"context"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// ValidatedURL is a URL whose scheme, port and every resolved address passed
// the policy. Only Sanitize constructs one.
type ValidatedURL struct {
	u     *url.URL
	addrs []netip.Addr
}

// URL returns a copy of the normalised URL.
func (v *ValidatedURL) URL() *url.URL {
	u := *v.u
	return &u
}

func (v *ValidatedURL) String() string { return v.u.String() }

// Addrs returns the address set the host was validated against.
func (v *ValidatedURL) Addrs() []netip.Addr {
	return append([]netip.Addr(nil), v.addrs...)
}

// Sanitizer turns untrusted URL strings into ValidatedURLs.
type Sanitizer struct {
	policy Policy
	hosts  *HostValidator
}

func NewSanitizer(policy Policy, hosts *HostValidator) *Sanitizer {
	if hosts == nil {
		hosts = NewHostValidator(nil, policy.ResolveTimeout)
	}
	return &Sanitizer{policy: policy, hosts: hosts}
}

// Sanitize parses raw, then checks protocol, port and host in that order.
func (s *Sanitizer) Sanitize(ctx context.Context, raw string) (*ValidatedURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, newError(CodeMalformedURL, err, "parse")
	}
	if !u.IsAbs() {
		return nil, newError(CodeMalformedURL, nil, "%q is not an absolute URL", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if !s.policy.schemeAllowed(scheme) {
		return nil, newError(CodeProtocolNotAllowed, nil, "scheme %q", scheme)
	}
	if u.Host == "" || u.Opaque != "" {
		return nil, newError(CodeMalformedURL, nil, "%q has no host", raw)
	}

	port, err := effectivePort(scheme, u.Port())
	if err != nil {
		return nil, newError(CodeMalformedURL, err, "port %q", u.Port())
	}
	if !s.policy.portAllowed(port) {
		return nil, newError(CodePortNotAllowed, nil, "port %d", port)
	}

	host, err := asciiHost(u.Hostname())
	if err != nil {
		return nil, newError(CodeMalformedURL, err, "host %q", u.Hostname())
	}
	if host == "" {
		return nil, newError(CodeMalformedURL, nil, "empty host")
	}
	if _, isIP := parseIPLiteral(host); !isIP && looksLikeNumericIPv4(host) {
		return nil, newError(CodeMalformedURL, nil, "non-canonical IPv4 host %q", host)
	}

	addrs, err := s.hosts.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	normalized := &url.URL{
		Scheme:   scheme,
		Host:     hostPort(host, u.Port()),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	return &ValidatedURL{u: normalized, addrs: addrs}, nil
}

// asciiHost lowercases host and converts internationalized names to their
// punycode form, the only form resolvers accept.
func asciiHost(host string) (string, error) {
	host = strings.ToLower(host)
	for i := 0; i < len(host); i++ {
		if host[i] >= utf8.RuneSelf {
			var err error
			if host, err = idna.Lookup.ToASCII(host); err != nil {
				return "", err
			}
			break
		}
	}
	return strings.TrimSuffix(host, "."), nil
}

func effectivePort(scheme, port string) (int, error) {
	if port == "" {
		switch scheme {
		case "https":
			return 443, nil
		default:
			return 80, nil
		}
	}
	return strconv.Atoi(port)
}

func hostPort(host, port string) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port == "" {
		return host
	}
	return host + ":" + port
}

// looksLikeNumericIPv4 reports whether host ends in a numeric label. Browsers
// and libc treat such hosts as IPv4 shorthands (2130706433, 0x7f.1,
// 0177.0.0.1), which must never reach a resolver.
func looksLikeNumericIPv4(host string) bool {
	labels := strings.Split(host, ".")
	last := labels[len(labels)-1]
	if last == "" {
		return false
	}
	if strings.HasPrefix(last, "0x") {
		last = last[2:]
		if last == "" {
			return true
		}
		for _, c := range last {
			if !strings.ContainsRune("0123456789abcdef", c) {
				return false
			}
		}
		return true
	}
	for _, c := range last {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
