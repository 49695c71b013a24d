// Command orchestratord runs the llmrank control-plane HTTP server:
// plan submission, task polling, leaderboard browsing, and admin
// maintenance endpoints backed by the in-process orchestrator.Service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/llmrank/internal/adapters/http/api"
	"github.com/okian/llmrank/internal/adapters/http/site"
	"github.com/okian/llmrank/internal/adapters/http/swagger"
	"github.com/okian/llmrank/internal/config"
	"github.com/okian/llmrank/internal/orchestrator"
	"github.com/okian/llmrank/pkg/logger"
	"github.com/okian/llmrank/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	statsUpdateInterval    = 5 * time.Second
	maxLeaderboardPageSize = 200
)

func main() {
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Error(err)
		}
	}()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := orchestrator.New(orchestrator.WithConfig(cfg), orchestrator.WithLogger(log))
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start orchestrator: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	go startStatsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	maxBrowse := cfg.MaxBrowseLimit
	if maxBrowse <= 0 {
		maxBrowse = maxLeaderboardPageSize
	}
	apiServer := api.NewServer(svc, maxBrowse)
	apiServer.Register(mux)

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

// startStatsUpdater periodically pushes the tasks-by-status and
// cache-rows counts from the query API into Prometheus so those gauges
// stay current between state changes.
func startStatsUpdater(ctx context.Context, svc *orchestrator.Service) {
	ticker := time.NewTicker(statsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := svc.Stats(ctx)
			for status, n := range s.TasksByStatus {
				metrics.UpdateTasksByStatus(string(status), n)
			}
			metrics.UpdateCacheRowsTotal(s.CacheRowCount)
		}
	}
}
