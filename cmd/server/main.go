package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindtrack/internal/app"
	"mindtrack/internal/config"
	"mindtrack/internal/httpx"
	"mindtrack/internal/scheduler"
	"mindtrack/internal/server"
	httptransport "mindtrack/internal/transport/http"
)

func main() {
	cfg := config.MustLoad()
	log := config.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "err", err)
		os.Exit(1)
	}
	defer application.Close()

	if cfg.Scheduler.Enabled {
		jobs, err := scheduler.New(application.Jobs, cfg.Scheduler, log)
		if err != nil {
			log.Error("failed to configure scheduler", "err", err)
			os.Exit(1)
		}
		jobs.Start(ctx)
	}

	limiter := httpx.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	if err := limiter.TrustProxies(cfg.RateLimit.TrustedProxies); err != nil {
		log.Error("invalid rate_limit.trusted_proxies", "err", err)
		os.Exit(1)
	}
	limiter.Cleanup(ctx, time.Minute)

	router := httptransport.Router(application.Services, httptransport.Options{
		Logger:     log,
		Limiter:    limiter,
		CronSecret: cfg.Cron.Secret,
		RefreshTTL: int(cfg.JWT.RefreshTTL.Seconds()),
	})

	if err := server.Start(ctx, cfg.Server, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
