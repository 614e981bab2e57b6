package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/metascan/analyzer"
	"github.com/seo-optimizer/metascan/safefetch"
	"github.com/seo-optimizer/metascan/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubAnalyzer struct {
	report *analyzer.Report
	err    error
	got    []string
}

func (s *stubAnalyzer) Analyze(ctx context.Context, rawURL string) (*analyzer.Report, error) {
	s.got = append(s.got, rawURL)
	return s.report, s.err
}

func newTestRouter(a Analyzer, devMode bool) (*gin.Engine, *stats.Collector) {
	collector := stats.New(false)
	r := NewRouter(a, collector, Options{Logger: quietLogger(), DevMode: devMode})
	return r, collector
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(&stubAnalyzer{}, false)
	rec := do(r, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a request id")
	}
}

func TestAnalyze_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"not json", `url=https://example.com`},
		{"not a url", `{"url":"not a url"}`},
		{"empty url", `{"url":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &stubAnalyzer{}
			r, _ := newTestRouter(a, false)
			rec := do(r, http.MethodPost, "/api/analyze", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := decode(t, rec)["error"]; got != "Invalid URL provided" {
				t.Errorf("error = %v", got)
			}
			if len(a.got) != 0 {
				t.Error("analyzer should not be called for an invalid body")
			}
		})
	}
}

func TestAnalyze_Success(t *testing.T) {
	report := &analyzer.Report{
		URL:        "https://example.com",
		Title:      "Example",
		Score:      70,
		Issues:     []analyzer.Issue{{Type: analyzer.IssueError, Message: "Missing meta description"}},
		Tags:       []analyzer.TagReport{{Name: "title", Content: "Example", Status: analyzer.StatusWarning}},
		AnalyzedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	a := &stubAnalyzer{report: report}
	r, _ := newTestRouter(a, false)

	rec := do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["score"] != float64(70) || body["title"] != "Example" || body["analyzedAt"] != "2024-05-01T00:00:00Z" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["description"]; ok {
		t.Error("absent description should be omitted")
	}
	if len(a.got) != 1 || a.got[0] != "https://example.com" {
		t.Errorf("analyzer called with %v", a.got)
	}
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"blocked", &safefetch.Error{Code: safefetch.CodeBlockedAddress, Detail: "host db.internal resolves to 10.0.0.5"}, http.StatusBadRequest, "blocked_address"},
		{"protocol", &safefetch.Error{Code: safefetch.CodeProtocolNotAllowed}, http.StatusBadRequest, "protocol_not_allowed"},
		{"port", &safefetch.Error{Code: safefetch.CodePortNotAllowed}, http.StatusBadRequest, "port_not_allowed"},
		{"malformed", &safefetch.Error{Code: safefetch.CodeMalformedURL}, http.StatusBadRequest, "malformed_url"},
		{"timeout", &safefetch.Error{Code: safefetch.CodeTimeout}, http.StatusGatewayTimeout, "timeout"},
		{"resolution", &safefetch.Error{Code: safefetch.CodeResolutionFailure}, http.StatusBadGateway, "resolution_failure"},
		{"too large", &safefetch.Error{Code: safefetch.CodeContentTooLarge}, http.StatusBadGateway, "content_too_large"},
		{"redirects", fmt.Errorf("analyze: %w", &safefetch.Error{Code: safefetch.CodeTooManyRedirects}), http.StatusBadGateway, "too_many_redirects"},
		{"unknown", errors.New("something broke at 10.0.0.5"), http.StatusInternalServerError, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(&stubAnalyzer{err: tt.err}, false)
			rec := do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decode(t, rec)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if strings.Contains(rec.Body.String(), "10.0.0.5") {
				t.Errorf("response leaked internal detail: %s", rec.Body.String())
			}
		})
	}
}

func TestStatistics(t *testing.T) {
	for _, devMode := range []bool{false, true} {
		t.Run(fmt.Sprintf("dev=%v", devMode), func(t *testing.T) {
			r, collector := newTestRouter(&stubAnalyzer{}, devMode)
			collector.RecordAnalysis(stats.OutcomeOK, 100*time.Millisecond)
			collector.RecordAnalysis("timeout", 300*time.Millisecond)

			rec := do(r, http.MethodGet, "/api/statistics", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			body := decode(t, rec)
			if body["totalAnalyses"] != float64(2) || body["errorRate"] != 0.5 {
				t.Errorf("body = %v", body)
			}
			_, hasOutcomes := body["outcomes"]
			if hasOutcomes != devMode {
				t.Errorf("outcomes present = %v, want %v", hasOutcomes, devMode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(&stubAnalyzer{}, false)
	do(r, http.MethodGet, "/api/health", "")

	rec := do(r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `metascan_http_requests_total{method="GET",route="/api/health",status_code="200"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics missing %q", want)
	}
}

// noDNS fails every lookup; literal addresses never reach it.
type noDNS struct{}

func (noDNS) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func TestAnalyze_MetadataEndpointEndToEnd(t *testing.T) {
	dials := 0
	fetcher, err := safefetch.New(safefetch.DefaultPolicy(),
		safefetch.WithResolver(noDNS{}),
		safefetch.WithDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
			dials++
			return nil, errors.New("dialing disabled in test")
		}),
		safefetch.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	collector := stats.New(false)
	a := analyzer.New(fetcher, analyzer.WithLogger(quietLogger()), analyzer.WithRecorder(collector))
	r := NewRouter(a, collector, Options{Logger: quietLogger()})

	rec := do(r, http.MethodPost, "/api/analyze", `{"url":"http://169.254.169.254/latest/meta-data/"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := decode(t, rec)["code"]; got != "blocked_address" {
		t.Errorf("code = %v", got)
	}
	if dials != 0 {
		t.Errorf("dials = %d, want 0", dials)
	}

	summary, err := collector.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Outcomes["blocked_address"] != 1 {
		t.Errorf("outcomes = %v", summary.Outcomes)
	}
}
