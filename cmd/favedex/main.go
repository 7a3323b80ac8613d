package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/favedex/favedex/internal/adapters/http/api"
	"github.com/favedex/favedex/internal/adapters/http/swagger"
	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/adapters/repository/sqlite"
	"github.com/favedex/favedex/internal/app"
	"github.com/favedex/favedex/internal/config"
	"github.com/favedex/favedex/pkg/logger"
	"github.com/favedex/favedex/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 10 * time.Second
)

func main() {
	// Disable default Go metrics collection; the custom registry carries
	// only service metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to flush logs: " + err.Error() + "\n")
		}
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	var store repository.Store
	if cfg.StoreBackend == "sqlite" {
		store, err = sqlite.New(cfg.SQLitePath)
		if err != nil {
			log.Error(ctx, "failed to open sqlite store", logger.Error(err))
			return
		}
		log.Info(ctx, "using sqlite store", logger.String("path", cfg.SQLitePath))
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithSyncWorkers(cfg.SyncWorkerCount),
		app.WithMaxRankingLimit(cfg.MaxRankingLimit),
		app.WithConflictRetries(cfg.ConflictRetryCount),
		app.WithConflictBackoff(time.Duration(cfg.ConflictBackoffMS)*time.Millisecond),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc, api.WithAdminToken(cfg.AdminToken))
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startServiceMetricsUpdater periodically refreshes service-level gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.GetStats()
			if n, ok := stats["activeEvents"].(int); ok {
				metrics.UpdateActiveEvents(n)
			}
			if n, ok := stats["rankingEntries"].(int); ok {
				metrics.UpdateRankingSize(n)
			}
		}
	}
}
