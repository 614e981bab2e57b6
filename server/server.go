package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/metascan/analyzer"
	"github.com/seo-optimizer/metascan/middleware"
	"github.com/seo-optimizer/metascan/stats"
)

// Analyzer is the analysis entry point used by the API.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) (*analyzer.Report, error)
}

// Options configures the router.
type Options struct {
	Logger *slog.Logger
	// DevMode adds per-outcome counts to /api/statistics.
	DevMode         bool
	CORSAllowOrigin string
}

type handler struct {
	analyzer  Analyzer
	collector *stats.Collector
	logger    *slog.Logger
	devMode   bool
}

// NewRouter wires the middleware chain and the API routes.
func NewRouter(a Analyzer, collector *stats.Collector, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origin := opts.CORSAllowOrigin
	if origin == "" {
		origin = "*"
	}

	h := &handler{
		analyzer:  a,
		collector: collector,
		logger:    logger,
		devMode:   opts.DevMode,
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.Metrics(collector),
		middleware.CORS(origin),
		middleware.Recovery(logger),
	)

	api := r.Group("/api")
	{
		api.GET("/health", h.health)
		api.POST("/analyze", h.analyze)
		api.GET("/statistics", h.statistics)
	}
	r.GET("/metrics", gin.WrapH(collector.Handler()))

	return r
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

type analyzeRequest struct {
	URL string `json:"url" binding:"required,url"`
}

func (h *handler) analyze(c *gin.Context) {
	var request analyzeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid URL provided",
			"code":  "invalid_request",
		})
		return
	}

	report, err := h.analyzer.Analyze(c.Request.Context(), request.URL)
	if err != nil {
		status, body := errorResponse(err)
		_ = c.Error(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *handler) statistics(c *gin.Context) {
	summary, err := h.collector.Snapshot()
	if err != nil {
		h.logger.Error("gather statistics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Statistics are unavailable",
			"code":  "internal_error",
		})
		return
	}
	if !h.devMode {
		summary.Outcomes = nil
	}
	c.JSON(http.StatusOK, summary)
}
