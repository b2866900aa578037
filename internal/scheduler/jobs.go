package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mindtrack/internal/domains"
	"mindtrack/internal/metrics"
)

const (
	JobDispatch    = "email_dispatch"
	JobReminders   = "email_reminders"
	JobExpirations = "assignment_expirations"
)

type EmailDispatcher interface {
	ProcessDue(ctx context.Context) (domains.DispatchReport, error)
	ProcessReminders(ctx context.Context) (int, error)
}

type AssignmentExpirer interface {
	ExpireAssignments(ctx context.Context) (int, error)
}

// Jobs are the periodic units of work shared by the cron scheduler and the cron endpoint.
type Jobs struct {
	emails      EmailDispatcher
	assignments AssignmentExpirer
	log         *slog.Logger
}

func NewJobs(emails EmailDispatcher, assignments AssignmentExpirer, log *slog.Logger) *Jobs {
	if log == nil {
		log = slog.Default()
	}
	return &Jobs{emails: emails, assignments: assignments, log: log}
}

func (j *Jobs) DispatchEmail(ctx context.Context) (domains.DispatchReport, error) {
	start := time.Now()
	report, err := j.emails.ProcessDue(ctx)
	j.finish(JobDispatch, start, err, "sent", report.Sent, "failed", report.Failed, "retried", report.Retried)
	return report, err
}

func (j *Jobs) SendReminders(ctx context.Context) (int, error) {
	start := time.Now()
	queued, err := j.emails.ProcessReminders(ctx)
	j.finish(JobReminders, start, err, "queued", queued)
	return queued, err
}

func (j *Jobs) ExpireAssignments(ctx context.Context) (int, error) {
	if j.assignments == nil {
		return 0, nil
	}
	start := time.Now()
	expired, err := j.assignments.ExpireAssignments(ctx)
	j.finish(JobExpirations, start, err, "expired", expired)
	return expired, err
}

// RunAll expires stale assignments, queues reminders and then dispatches everything due,
// so reminders queued in this pass go out in the same pass. A failing step does not stop the others.
func (j *Jobs) RunAll(ctx context.Context) (domains.DispatchReport, error) {
	expired, expireErr := j.ExpireAssignments(ctx)
	reminders, remindErr := j.SendReminders(ctx)
	report, dispatchErr := j.DispatchEmail(ctx)

	report.Expired = expired
	report.Reminders = reminders
	return report, errors.Join(expireErr, remindErr, dispatchErr)
}

func (j *Jobs) finish(job string, start time.Time, err error, counts ...any) {
	elapsed := time.Since(start)
	metrics.RecordJob(job, elapsed, err == nil)
	if err != nil {
		j.log.Error("scheduled job failed", "job", job, "err", err)
		return
	}
	j.log.Info("scheduled job finished", append([]any{"job", job, "duration_ms", elapsed.Milliseconds()}, counts...)...)
}
