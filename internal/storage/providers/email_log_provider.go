package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const emailLogColumns = `id, organization_id, template_id, assignment_id, kind, recipient, subject, body_html, body_text,
	status, tracking_id::text, variables, send_at, claimed_until, sent_at, attempts, last_error, opened_at, open_count,
	clicked_at, click_count, created_at`

type EmailLogProvider struct {
	db *pgxpool.Pool
}

func NewEmailLogProvider(db *pgxpool.Pool) *EmailLogProvider {
	return &EmailLogProvider{
		db: db,
	}
}

func (p *EmailLogProvider) QueueEmails(ctx context.Context, emails []domains.EmailToQueue) ([]domains.EmailLog, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertLog = `
		INSERT INTO email_logs (
		    organization_id, template_id, assignment_id, kind, recipient, subject,
		    body_html, body_text, status, tracking_id, variables, send_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'scheduled',$9,$10,$11)
		RETURNING ` + emailLogColumns

	logs := make([]domains.EmailLog, 0, len(emails))
	for _, email := range emails {
		trackingID, err := uuid.Parse(email.TrackingID)
		if err != nil {
			return nil, fmt.Errorf("parse tracking id: %w", err)
		}
		variables := email.Variables
		if variables == nil {
			variables = map[string]string{}
		}
		rows, err := tx.Query(ctx, insertLog,
			email.OrganizationID,
			email.TemplateID,
			email.AssignmentID,
			email.Kind,
			email.Recipient,
			email.Subject,
			email.BodyHTML,
			email.BodyText,
			trackingID,
			variables,
			email.SendAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert email log: %w", storage.Classify(err))
		}
		log, err := pgx.CollectOneRow(rows, scanEmailLog)
		if err != nil {
			return nil, fmt.Errorf("insert email log: %w", storage.Classify(err))
		}
		logs = append(logs, log)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return logs, nil
}

// ClaimDueEmails leases up to limit scheduled emails whose send time has passed.
// Claimed rows move to 'sending' until leaseUntil and get their attempt counter
// bumped. Rows whose lease ran out, left behind by a crashed worker, are claimed again.
func (p *EmailLogProvider) ClaimDueEmails(ctx context.Context, now time.Time, limit int, leaseUntil time.Time) ([]domains.EmailLog, error) {
	rows, err := p.db.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM email_logs
			WHERE (status = 'scheduled' AND send_at <= $1)
			   OR (status = 'sending' AND claimed_until <= $1)
			ORDER BY send_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE email_logs e
		SET status = 'sending', claimed_until = $3, attempts = e.attempts + 1
		FROM due
		WHERE e.id = due.id
		RETURNING `+prefixColumns("e.", emailLogColumns),
		now, limit, leaseUntil,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due emails: %w", err)
	}
	logs, err := pgx.CollectRows(rows, scanEmailLog)
	if err != nil {
		return nil, fmt.Errorf("claim due emails: %w", err)
	}
	return logs, nil
}

// MarkEmailSent finishes a claimed email. It fails with ErrStateConflict when the
// row is no longer leased.
func (p *EmailLogProvider) MarkEmailSent(ctx context.Context, id int64, at time.Time) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE email_logs
		SET status = 'sent', sent_at = $1, claimed_until = NULL, last_error = NULL
		WHERE id = $2 AND status = 'sending'`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.leaseLost(ctx, "mark email sent", id)
	}
	return nil
}

// MarkEmailFailed records a delivery error on a claimed email. With retryAt set the
// email goes back to the schedule, otherwise it is failed for good.
func (p *EmailLogProvider) MarkEmailFailed(ctx context.Context, id int64, reason string, retryAt *time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if retryAt != nil {
		tag, err = p.db.Exec(ctx, `
			UPDATE email_logs
			SET status = 'scheduled', send_at = $1, claimed_until = NULL, last_error = $2
			WHERE id = $3 AND status = 'sending'`,
			*retryAt, reason, id,
		)
	} else {
		tag, err = p.db.Exec(ctx, `
			UPDATE email_logs
			SET status = 'failed', claimed_until = NULL, last_error = $1
			WHERE id = $2 AND status = 'sending'`,
			reason, id,
		)
	}
	if err != nil {
		return fmt.Errorf("mark email failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.leaseLost(ctx, "mark email failed", id)
	}
	return nil
}

func (p *EmailLogProvider) leaseLost(ctx context.Context, op string, id int64) error {
	if _, err := p.GetEmailLog(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, storage.ErrStateConflict)
}

// CancelEmail stops a scheduled email. Emails a dispatcher is sending can no
// longer be cancelled.
func (p *EmailLogProvider) CancelEmail(ctx context.Context, id int64) (domains.EmailLog, error) {
	rows, err := p.db.Query(ctx, `
		UPDATE email_logs SET status = 'cancelled'
		WHERE id = $1 AND status = 'scheduled'
		RETURNING `+emailLogColumns,
		id,
	)
	if err != nil {
		return domains.EmailLog{}, fmt.Errorf("cancel email: %w", err)
	}
	log, err := pgx.CollectOneRow(rows, scanEmailLog)
	if err == nil {
		return log, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domains.EmailLog{}, fmt.Errorf("cancel email: %w", err)
	}
	if _, err := p.GetEmailLog(ctx, id); err != nil {
		return domains.EmailLog{}, err
	}
	return domains.EmailLog{}, fmt.Errorf("cancel email: %w", storage.ErrStateConflict)
}

func (p *EmailLogProvider) GetEmailLog(ctx context.Context, id int64) (domains.EmailLog, error) {
	rows, err := p.db.Query(ctx, `SELECT `+emailLogColumns+` FROM email_logs WHERE id = $1`, id)
	if err != nil {
		return domains.EmailLog{}, fmt.Errorf("get email log: %w", err)
	}
	log, err := pgx.CollectOneRow(rows, scanEmailLog)
	if err != nil {
		return domains.EmailLog{}, fmt.Errorf("get email log: %w", storage.Classify(err))
	}
	return log, nil
}

func (p *EmailLogProvider) ListEmailLogs(ctx context.Context, filter domains.EmailLogFilter) ([]domains.EmailLog, error) {
	where := []string{"TRUE"}
	args := make([]interface{}, 0, 5)
	idx := 1

	if filter.OrganizationID != nil {
		where = append(where, fmt.Sprintf("organization_id = $%d", idx))
		args = append(args, *filter.OrganizationID)
		idx++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.TemplateID != nil {
		where = append(where, fmt.Sprintf("template_id = $%d", idx))
		args = append(args, *filter.TemplateID)
		idx++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM email_logs
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		emailLogColumns, strings.Join(where, " AND "), idx, idx+1,
	)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, scanEmailLog)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	return logs, nil
}

func (p *EmailLogProvider) RecordOpen(ctx context.Context, trackingID string, at time.Time) error {
	id, err := uuid.Parse(trackingID)
	if err != nil {
		return fmt.Errorf("record open: %w", storage.ErrNotFound)
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE email_logs
		SET open_count = open_count + 1, opened_at = COALESCE(opened_at, $1)
		WHERE tracking_id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record open: %w", storage.ErrNotFound)
	}
	return nil
}

func (p *EmailLogProvider) RecordClick(ctx context.Context, trackingID string, at time.Time) error {
	id, err := uuid.Parse(trackingID)
	if err != nil {
		return fmt.Errorf("record click: %w", storage.ErrNotFound)
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE email_logs
		SET click_count = click_count + 1, clicked_at = COALESCE(clicked_at, $1)
		WHERE tracking_id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record click: %w", storage.ErrNotFound)
	}
	return nil
}

func (p *EmailLogProvider) EmailCounts(ctx context.Context, organizationID int64, templateID *int64) (domains.EmailAnalyticsCounts, error) {
	var counts domains.EmailAnalyticsCounts
	err := p.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status IN ('scheduled', 'sending')),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE opened_at IS NOT NULL),
			COUNT(*) FILTER (WHERE clicked_at IS NOT NULL),
			COALESCE(SUM(open_count), 0),
			COALESCE(SUM(click_count), 0)
		FROM email_logs
		WHERE organization_id = $1
		  AND ($2::bigint IS NULL OR template_id = $2)`,
		organizationID, templateID,
	).Scan(
		&counts.Sent,
		&counts.Failed,
		&counts.Scheduled,
		&counts.Cancelled,
		&counts.UniqueOpens,
		&counts.UniqueClicks,
		&counts.TotalOpens,
		&counts.TotalClicks,
	)
	if err != nil {
		return domains.EmailAnalyticsCounts{}, fmt.Errorf("count emails: %w", err)
	}
	return counts, nil
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = prefix + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func scanEmailLog(row pgx.CollectableRow) (domains.EmailLog, error) {
	var l domains.EmailLog
	err := row.Scan(
		&l.ID,
		&l.OrganizationID,
		&l.TemplateID,
		&l.AssignmentID,
		&l.Kind,
		&l.Recipient,
		&l.Subject,
		&l.BodyHTML,
		&l.BodyText,
		&l.Status,
		&l.TrackingID,
		&l.Variables,
		&l.SendAt,
		&l.ClaimedUntil,
		&l.SentAt,
		&l.Attempts,
		&l.LastError,
		&l.OpenedAt,
		&l.OpenCount,
		&l.ClickedAt,
		&l.ClickCount,
		&l.CreatedAt,
	)
	return l, err
}
