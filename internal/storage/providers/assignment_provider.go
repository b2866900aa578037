package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const assignmentColumns = `id, questionnaire_id, organization_id, respondent_email, respondent_name, state,
	token_hash, token_expires_at, invited_by, reminder_count, last_reminded_at, created_at`

type AssignmentProvider struct {
	db *pgxpool.Pool
}

func NewAssignmentProvider(db *pgxpool.Pool) *AssignmentProvider {
	return &AssignmentProvider{
		db: db,
	}
}

// SaveAssignments inserts one assignment per recipient and stores the hash of the
// token produced by generator. Either every recipient is invited or none is.
func (p *AssignmentProvider) SaveAssignments(ctx context.Context, batch domains.AssignmentToSave, generator domains.InvitationTokenGenerator) ([]domains.Invitation, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertAssignment = `
		INSERT INTO assignments (questionnaire_id, organization_id, respondent_email, respondent_name, state, invited_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	invitations := make([]domains.Invitation, 0, len(batch.Recipients))
	for _, recipient := range batch.Recipients {
		email := strings.ToLower(strings.TrimSpace(recipient.Email))

		var assignmentID int64
		if err := tx.QueryRow(ctx, insertAssignment,
			batch.QuestionnaireID,
			batch.OrganizationID,
			email,
			recipient.Name,
			domains.AssignmentInvited,
			batch.InvitedBy,
		).Scan(&assignmentID); err != nil {
			return nil, fmt.Errorf("insert assignment %s: %w", email, storage.Classify(err))
		}

		token, hash, expiresAt, err := generator(domains.InvitationTokenPayload{
			AssignmentID:    assignmentID,
			QuestionnaireID: batch.QuestionnaireID,
			OrganizationID:  batch.OrganizationID,
			Email:           email,
			ExpiresAt:       batch.ExpiresAt,
		})
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE assignments SET token_hash = $1, token_expires_at = $2 WHERE id = $3`,
			hash, expiresAt, assignmentID,
		); err != nil {
			return nil, fmt.Errorf("update assignment token: %w", err)
		}

		invitations = append(invitations, domains.Invitation{
			AssignmentID: assignmentID,
			Email:        email,
			Name:         recipient.Name,
			Token:        token,
			ExpiresAt:    expiresAt,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return invitations, nil
}

func (p *AssignmentProvider) GetAssignment(ctx context.Context, id int64) (domains.Assignment, error) {
	rows, err := p.db.Query(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	if err != nil {
		return domains.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAssignment)
	if err != nil {
		return domains.Assignment{}, fmt.Errorf("get assignment: %w", storage.Classify(err))
	}
	return a, nil
}

func (p *AssignmentProvider) GetAssignmentByTokenHash(ctx context.Context, hash []byte) (domains.Assignment, error) {
	rows, err := p.db.Query(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE token_hash = $1`, hash)
	if err != nil {
		return domains.Assignment{}, fmt.Errorf("get assignment by token: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAssignment)
	if err != nil {
		return domains.Assignment{}, fmt.Errorf("get assignment by token: %w", storage.Classify(err))
	}
	return a, nil
}

func (p *AssignmentProvider) ListAssignments(ctx context.Context, questionnaireID int64) ([]domains.Assignment, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE questionnaire_id = $1 ORDER BY created_at DESC, id DESC`,
		questionnaireID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	assignments, err := pgx.CollectRows(rows, scanAssignment)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// RevokeAssignment fails with storage.ErrStateConflict when the assignment is no longer open.
func (p *AssignmentProvider) RevokeAssignment(ctx context.Context, questionnaireID, id int64) (domains.Assignment, error) {
	rows, err := p.db.Query(ctx, `
		UPDATE assignments
		SET state = 'revoked', token_hash = NULL
		WHERE id = $1 AND questionnaire_id = $2 AND state IN ('invited', 'started')
		RETURNING `+assignmentColumns,
		id, questionnaireID,
	)
	if err != nil {
		return domains.Assignment{}, fmt.Errorf("revoke assignment: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAssignment)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domains.Assignment{}, fmt.Errorf("revoke assignment: %w", err)
	}

	var exists bool
	if err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM assignments WHERE id = $1 AND questionnaire_id = $2)`,
		id, questionnaireID,
	).Scan(&exists); err != nil {
		return domains.Assignment{}, fmt.Errorf("revoke assignment: %w", err)
	}
	if exists {
		return domains.Assignment{}, fmt.Errorf("revoke assignment: %w", storage.ErrStateConflict)
	}
	return domains.Assignment{}, fmt.Errorf("revoke assignment: %w", storage.ErrNotFound)
}

func (p *AssignmentProvider) ExpireAssignments(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE assignments
		SET state = 'expired'
		WHERE state IN ('invited', 'started')
		  AND token_expires_at IS NOT NULL
		  AND token_expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire assignments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *AssignmentProvider) CountAssignments(ctx context.Context, questionnaireID int64) (domains.AssignmentCounts, error) {
	var counts domains.AssignmentCounts
	err := p.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE state IN ('started', 'completed')),
			COUNT(*) FILTER (WHERE state = 'completed'),
			COUNT(*) FILTER (WHERE state = 'revoked'),
			COUNT(*) FILTER (WHERE state = 'expired')
		FROM assignments
		WHERE questionnaire_id = $1`,
		questionnaireID,
	).Scan(&counts.Total, &counts.Started, &counts.Completed, &counts.Revoked, &counts.Expired)
	if err != nil {
		return domains.AssignmentCounts{}, fmt.Errorf("count assignments: %w", err)
	}
	return counts, nil
}

// ListReminderCandidates returns open assignments whose last contact is older than the
// delay of their reminder automation and which have reminders left. An automation
// bound to the questionnaire replaces the organization-wide one entirely, even
// while its own delay has not passed yet.
func (p *AssignmentProvider) ListReminderCandidates(ctx context.Context, now time.Time, limit int) ([]domains.ReminderCandidate, error) {
	const query = `
		SELECT
			a.id, a.questionnaire_id, a.organization_id, a.respondent_email, a.respondent_name, a.state,
			a.token_hash, a.token_expires_at, a.invited_by, a.reminder_count, a.last_reminded_at, a.created_at,
			ea.id, ea.template_id, ea.max_reminders, q.title, o.name
		FROM assignments a
		JOIN questionnaires q ON q.id = a.questionnaire_id
		JOIN organizations o ON o.id = a.organization_id
		JOIN LATERAL (
			SELECT id, template_id, max_reminders, delay_hours
			FROM email_automations
			WHERE organization_id = a.organization_id
			  AND trigger = 'reminder'
			  AND is_active
			  AND (questionnaire_id IS NULL OR questionnaire_id = a.questionnaire_id)
			ORDER BY questionnaire_id NULLS LAST, id
			LIMIT 1
		) ea ON TRUE
		WHERE a.state IN ('invited', 'started')
		  AND q.is_active
		  AND (a.token_expires_at IS NULL OR a.token_expires_at > $1)
		  AND a.reminder_count < ea.max_reminders
		  AND COALESCE(a.last_reminded_at, a.created_at) <= $1 - make_interval(hours => ea.delay_hours)
		ORDER BY a.id
		LIMIT $2`

	rows, err := p.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domains.ReminderCandidate
	for rows.Next() {
		var c domains.ReminderCandidate
		a := &c.Assignment
		if err := rows.Scan(
			&a.ID, &a.QuestionnaireID, &a.OrganizationID, &a.RespondentEmail, &a.RespondentName, &a.State,
			&a.TokenHash, &a.TokenExpiresAt, &a.InvitedBy, &a.ReminderCount, &a.LastRemindedAt, &a.CreatedAt,
			&c.AutomationID, &c.TemplateID, &c.MaxReminders, &c.QuestionnaireTitle, &c.OrganizationName,
		); err != nil {
			return nil, fmt.Errorf("scan reminder candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder candidates: %w", err)
	}
	return candidates, nil
}

func (p *AssignmentProvider) RecordReminder(ctx context.Context, assignmentID int64, at time.Time) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE assignments SET reminder_count = reminder_count + 1, last_reminded_at = $1 WHERE id = $2`,
		at, assignmentID,
	)
	if err != nil {
		return fmt.Errorf("record reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record reminder: %w", storage.ErrNotFound)
	}
	return nil
}

func scanAssignment(row pgx.CollectableRow) (domains.Assignment, error) {
	var a domains.Assignment
	err := row.Scan(
		&a.ID,
		&a.QuestionnaireID,
		&a.OrganizationID,
		&a.RespondentEmail,
		&a.RespondentName,
		&a.State,
		&a.TokenHash,
		&a.TokenExpiresAt,
		&a.InvitedBy,
		&a.ReminderCount,
		&a.LastRemindedAt,
		&a.CreatedAt,
	)
	return a, err
}
