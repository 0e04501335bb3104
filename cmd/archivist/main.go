// Command archivist runs the queue-facing HTTP server: it wires the
// Browser capability, the Resource Downloader, the Capture Store, the
// Job Tracker, the Test-Crawl Manager, and the Capture Orchestrator
// behind the thin api package, following the teacher's cmd/purify/main.go
// startup sequence (load config, init logging, init browser, wire
// router, serve, drain on signal).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/archivist/api"
	"github.com/use-agent/archivist/browser"
	"github.com/use-agent/archivist/config"
	"github.com/use-agent/archivist/downloader"
	"github.com/use-agent/archivist/jobtracker"
	"github.com/use-agent/archivist/orchestrator"
	"github.com/use-agent/archivist/ratelimit"
	"github.com/use-agent/archivist/store"
	"github.com/use-agent/archivist/testcrawl"
)

func main() {
	cfg := config.Load()

	initLogger(cfg.Log)
	slog.Info("archivist starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"maxPages", cfg.Browser.MaxPages,
		"maxConcurrent", cfg.Job.MaxConcurrent,
	)

	b, err := browser.NewRod(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	limiter := ratelimit.New(cfg.RateLimit.MinDelay, cfg.RateLimit.MaxRetryAfter, cfg.RateLimit.EntryTTL)
	defer limiter.Close()

	dlCfg := downloader.DefaultConfig()
	dlCfg.Timeout = cfg.Crawl.ResourceTimeout
	dlCfg.Retries = cfg.Crawl.DownloadRetries
	dl := downloader.New(limiter, dlCfg)

	st := store.New(cfg.Store.BaseDir)
	if err := st.Initialize(); err != nil {
		slog.Error("failed to initialize capture store", "error", err)
		os.Exit(1)
	}

	jobs := jobtracker.New(cfg.Job.MaxConcurrent)
	tc := testcrawl.New(b)

	orch := orchestrator.New(b, dl, jobs, st, tc, cfg.Crawl.ResourceConcurrency)

	startTime := time.Now()
	go sweepLoop(cfg, jobs, tc)

	router := api.NewRouter(api.Deps{
		Orchestrator: orch,
		Jobs:         jobs,
		Store:        st,
		TestCrawls:   tc,
		StartTime:    startTime,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("archivist stopped")
}

// sweepLoop periodically evicts terminal-state jobs, batches, and test
// crawls older than their configured retention, per spec.md §6's
// retention defaults and SPEC_FULL.md §12's ticker-based eviction
// grounded on the teacher's crawlStore/batchStore init() tickers.
func sweepLoop(cfg *config.Config, jobs *jobtracker.Tracker, tc *testcrawl.Manager) {
	ticker := time.NewTicker(cfg.Job.SweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		removedJobs := jobs.CleanupOldJobs(cfg.Job.JobRetention)
		removedBatches := jobs.CleanupOldBatches(cfg.Job.BatchRetention)
		removedCrawls := tc.Cleanup(cfg.Job.TestCrawlRetention)
		if removedJobs+removedBatches+removedCrawls > 0 {
			slog.Info("retention sweep",
				"jobs", removedJobs, "batches", removedBatches, "testCrawls", removedCrawls)
		}
	}
}

// initLogger configures slog based on the LogConfig, mirroring the
// teacher's cmd/purify/main.go initLogger.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
