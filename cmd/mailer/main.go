// Command mailer runs only the email jobs: due dispatch, reminders and assignment expiry.
// Use it instead of the in-process scheduler when the API runs with scheduler.enabled=false.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mindtrack/internal/app"
	"mindtrack/internal/config"
	"mindtrack/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
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

	if *once {
		report, err := application.Jobs.RunAll(ctx)
		if err != nil {
			log.Error("mail run failed", "err", err)
			os.Exit(1)
		}
		log.Info("mail run finished", "sent", report.Sent, "failed", report.Failed,
			"reminders", report.Reminders, "expired", report.Expired)
		return
	}

	jobs, err := scheduler.New(application.Jobs, cfg.Scheduler, log)
	if err != nil {
		log.Error("failed to configure scheduler", "err", err)
		os.Exit(1)
	}
	jobs.Start(ctx)
	log.Info("mailer running")
	<-ctx.Done()
	log.Info("mailer stopping")
	jobs.Stop()
}
