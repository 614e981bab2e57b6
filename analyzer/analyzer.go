package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seo-optimizer/metascan/safefetch"
)

// DefaultTimeout bounds a whole analysis, redirects included.
const DefaultTimeout = 30 * time.Second

// Fetcher retrieves a page through the SSRF-safe pipeline.
type Fetcher interface {
	FetchURL(ctx context.Context, raw string) (*safefetch.Document, error)
}

// Recorder receives the outcome of every analysis. Code is "ok" on success
// and the safefetch error code name otherwise.
type Recorder interface {
	RecordAnalysis(code string, elapsed time.Duration)
}

// Analyzer performs SEO analysis on a given URL
type Analyzer struct {
	fetcher  Fetcher
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

type Option func(*Analyzer)

func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) { a.recorder = r }
}

// WithClock replaces time.Now for the analyzedAt stamp and durations.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates a new Analyzer instance
func New(fetcher Fetcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		fetcher: fetcher,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze fetches rawURL, extracts its metadata and scores it. Either a full
// report or an error is returned, never both.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (*Report, error) {
	start := a.now()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	doc, err := a.fetcher.FetchURL(ctx, rawURL)
	elapsed := a.now().Sub(start)
	if err != nil {
		code := safefetch.CodeOf(err)
		a.record(code.String(), elapsed)
		level := slog.LevelWarn
		if code.IsValidation() {
			level = slog.LevelInfo
		}
		a.logger.Log(ctx, level, "analysis failed",
			"url", rawURL,
			"code", code.String(),
			"duration", elapsed,
			"error", err,
		)
		return nil, fmt.Errorf("analyze %s: %w", rawURL, err)
	}

	meta := Extract(doc.Body)
	meta.PageURL = doc.URL
	card := Score(meta)

	report := &Report{
		URL:                rawURL,
		Title:              meta.Title,
		Description:        meta.Description,
		OGTitle:            meta.OGTitle,
		OGDescription:      meta.OGDescription,
		OGImage:            meta.OGImage,
		TwitterTitle:       meta.TwitterTitle,
		TwitterDescription: meta.TwitterDescription,
		TwitterImage:       meta.TwitterImage,
		Canonical:          meta.Canonical,
		Robots:             meta.Robots,
		Viewport:           meta.Viewport,
		Score:              card.Score,
		Issues:             card.Issues,
		Tags:               card.Tags,
		AnalyzedAt:         a.now().UTC(),
	}

	a.record("ok", elapsed)
	a.logger.Info("analysis complete",
		"url", rawURL,
		"final_url", doc.URL,
		"status", doc.StatusCode,
		"bytes", doc.Size,
		"redirects", doc.Redirects,
		"score", report.Score,
		"duration", elapsed,
	)
	return report, nil
}

func (a *Analyzer) record(code string, elapsed time.Duration) {
	if a.recorder != nil {
		a.recorder.RecordAnalysis(code, elapsed)
	}
}
