package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/metascan/analyzer"
	"github.com/seo-optimizer/metascan/config"
	"github.com/seo-optimizer/metascan/logging"
	"github.com/seo-optimizer/metascan/safefetch"
	"github.com/seo-optimizer/metascan/server"
	"github.com/seo-optimizer/metascan/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "metascan:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	slog.SetDefault(logger)
	if envFile == "" {
		logger.Info("no .env file found, using environment variables")
	} else {
		logger.Info("loaded environment file", "file", envFile)
	}

	gin.SetMode(cfg.GinMode)

	fetcher, err := safefetch.New(cfg.Fetch, safefetch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}

	collector := stats.New(true)
	seoAnalyzer := analyzer.New(fetcher,
		analyzer.WithTimeout(cfg.AnalyzeTimeout),
		analyzer.WithLogger(logger),
		analyzer.WithRecorder(collector),
	)

	router := server.NewRouter(seoAnalyzer, collector, server.Options{
		Logger:          logger,
		DevMode:         cfg.DevMode,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Analyses may take up to the analysis timeout before the response starts.
		WriteTimeout: cfg.AnalyzeTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", "http://localhost:"+cfg.Port,
			"max_redirects", cfg.Fetch.MaxRedirects,
			"allowed_ports", cfg.Fetch.AllowedPorts,
			"pin_dns", cfg.Fetch.PinResolvedAddrs,
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
