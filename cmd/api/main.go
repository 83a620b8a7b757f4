package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hamed0406/searchcaps/internal/capability"
	"github.com/hamed0406/searchcaps/internal/config"
	"github.com/hamed0406/searchcaps/internal/httpapi"
	"github.com/hamed0406/searchcaps/internal/logging"
	"github.com/hamed0406/searchcaps/internal/metrics"
	"github.com/hamed0406/searchcaps/internal/notify"
	"github.com/hamed0406/searchcaps/internal/probe"
	"github.com/hamed0406/searchcaps/internal/repo"
	"github.com/hamed0406/searchcaps/internal/repo/backend"
	"github.com/hamed0406/searchcaps/internal/scheduler"
	"github.com/hamed0406/searchcaps/internal/search"
)

func main() {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository_open_failed", zap.Error(err))
	}
	defer closeStore()

	var p probe.Prober = probe.NewQueryProber(store, repo.Credential{Subservice: search.Subservice}, logger)
	if cfg.RetryAttempts > 1 {
		p = &probe.RetryProber{Inner: p, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}
	p = probe.Timeout(p, cfg.ProbeTimeout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	src := search.New(search.Config{
		SimilarityIndexQuery: cfg.SimilarityIndexQuery,
		CacheLifetime:        cfg.CacheLifetime,
	}, p,
		search.WithLogger(logger),
		search.WithMetrics(metrics.NewCache(reg, "searchcaps", search.SimilaritySearchActive)),
	)

	caps := capability.NewRegistry(logger)
	if err := caps.Register(src); err != nil {
		logger.Fatal("capability_register_failed", zap.Error(err))
	}

	notifiers := notify.Multi{notify.Log{Logger: logger}}
	if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
		notifiers = append(notifiers, slack)
	}
	watcher := scheduler.NewWatcher(logger, caps, notifiers, scheduler.WatcherConfig{
		Interval:      cfg.WatchInterval,
		Cooldown:      cfg.NotifyCooldown,
		NotifyInitial: cfg.NotifyInitial,
	})
	go watcher.Run(ctx)

	api := httpapi.NewServer(logger, caps, reg)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(cfg.PublicAPIKeys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api_shutdown_error", zap.Error(err))
		}
	}()

	logger.Info("api_listen",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.StoreDriver),
		zap.Duration("cache_lifetime", cfg.CacheLifetime),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_listen_failed", zap.Error(err))
	}
	logger.Info("api_stopped")
}
