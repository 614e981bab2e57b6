package stats

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "metascan"

// OutcomeOK labels successful analyses.
const OutcomeOK = "ok"

var (
	// HTTPLatencyBuckets cover the API surface, where analyses dominate.
	HTTPLatencyBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	// AnalysisLatencyBuckets cover fetch plus parse, up to the analysis timeout.
	AnalysisLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30}
)

// Collector holds the service metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

// New creates a Collector. Runtime and process collectors are added when
// withRuntime is set; tests leave them out to keep gathers small.
func New(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Completed analyses by outcome code",
			},
			[]string{"outcome"},
		),
		analysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Time spent fetching and scoring a page",
				Buckets:   AnalysisLatencyBuckets,
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   HTTPLatencyBuckets,
			},
			[]string{"method", "route"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_in_flight_requests",
				Help:      "Requests currently being served",
			},
		),
	}

	c.registry.MustRegister(
		c.analyses,
		c.analysisDuration,
		c.httpRequests,
		c.httpDuration,
		c.inFlight,
	)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Expose the success series before the first analysis.
	c.analyses.WithLabelValues(OutcomeOK)

	return c
}

// Handler serves the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordAnalysis counts one analysis. Outcome is OutcomeOK or an error code.
func (c *Collector) RecordAnalysis(outcome string, elapsed time.Duration) {
	c.analyses.WithLabelValues(outcome).Inc()
	c.analysisDuration.Observe(elapsed.Seconds())
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its release.
func (c *Collector) TrackInFlight() func() {
	c.inFlight.Inc()
	return c.inFlight.Dec
}

// Summary is the statistics view served by the API.
type Summary struct {
	TotalAnalyses     int            `json:"totalAnalyses"`
	ErrorCount        int            `json:"errorCount"`
	ErrorRate         float64        `json:"errorRate"`
	AverageDurationMs float64        `json:"averageDurationMs"`
	Outcomes          map[string]int `json:"outcomes,omitempty"`
}

// Snapshot reads the analysis metrics back from the registry.
func (c *Collector) Snapshot() (Summary, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return Summary{}, err
	}
	return summarize(families), nil
}

func summarize(families []*dto.MetricFamily) Summary {
	s := Summary{Outcomes: make(map[string]int)}
	var durationSum float64
	var durationCount uint64

	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_analyses_total":
			for _, m := range mf.GetMetric() {
				n := int(m.GetCounter().GetValue())
				outcome := labelValue(m, "outcome")
				s.Outcomes[outcome] = n
				s.TotalAnalyses += n
				if outcome != OutcomeOK {
					s.ErrorCount += n
				}
			}
		case namespace + "_analysis_duration_seconds":
			for _, m := range mf.GetMetric() {
				durationSum += m.GetHistogram().GetSampleSum()
				durationCount += m.GetHistogram().GetSampleCount()
			}
		}
	}

	if s.TotalAnalyses > 0 {
		s.ErrorRate = float64(s.ErrorCount) / float64(s.TotalAnalyses)
	}
	if durationCount > 0 {
		s.AverageDurationMs = durationSum / float64(durationCount) * 1000
	}
	return s
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
