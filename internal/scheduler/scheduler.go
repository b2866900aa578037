package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mindtrack/internal/config"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs Jobs on cron specs. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

func New(jobs *Jobs, cfg config.SchedulerConfig, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	s := &Scheduler{cron: c, log: log}

	entries := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{JobDispatch, cfg.DispatchSpec, func(ctx context.Context) error {
			_, err := jobs.DispatchEmail(ctx)
			return err
		}},
		{JobReminders, cfg.RemindersSpec, func(ctx context.Context) error {
			_, err := jobs.SendReminders(ctx)
			return err
		}},
		{JobExpirations, cfg.ExpirationsSpec, func(ctx context.Context) error {
			_, err := jobs.ExpireAssignments(ctx)
			return err
		}},
	}
	for _, e := range entries {
		if e.spec == "" {
			log.Info("scheduled job disabled", "job", e.name)
			continue
		}
		run := e.run
		if _, err := c.AddFunc(e.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			_ = run(ctx)
		}); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", e.name, e.spec, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts scheduling and blocks until running jobs return. Safe to call more than once.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
