package providers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const automationColumns = `id, organization_id, template_id, questionnaire_id, trigger, delay_hours, max_reminders, is_active, created_at`

type AutomationProvider struct {
	db *pgxpool.Pool
}

func NewAutomationProvider(db *pgxpool.Pool) *AutomationProvider {
	return &AutomationProvider{
		db: db,
	}
}

func (p *AutomationProvider) SaveAutomation(ctx context.Context, organizationID int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error) {
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	rows, err := p.db.Query(ctx, `
		INSERT INTO email_automations (organization_id, template_id, questionnaire_id, trigger, delay_hours, max_reminders, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+automationColumns,
		organizationID, input.TemplateID, input.QuestionnaireID, input.Trigger, input.DelayHours, input.MaxReminders, active,
	)
	if err != nil {
		return domains.EmailAutomation{}, fmt.Errorf("insert automation: %w", storage.Classify(err))
	}
	created, err := pgx.CollectOneRow(rows, scanAutomation)
	if err != nil {
		return domains.EmailAutomation{}, fmt.Errorf("insert automation: %w", storage.Classify(err))
	}
	return created, nil
}

func (p *AutomationProvider) GetAutomation(ctx context.Context, id int64) (domains.EmailAutomation, error) {
	rows, err := p.db.Query(ctx, `SELECT `+automationColumns+` FROM email_automations WHERE id = $1`, id)
	if err != nil {
		return domains.EmailAutomation{}, fmt.Errorf("get automation: %w", err)
	}
	automation, err := pgx.CollectOneRow(rows, scanAutomation)
	if err != nil {
		return domains.EmailAutomation{}, fmt.Errorf("get automation: %w", storage.Classify(err))
	}
	return automation, nil
}

func (p *AutomationProvider) ListAutomations(ctx context.Context, organizationID int64) ([]domains.EmailAutomation, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+automationColumns+` FROM email_automations WHERE organization_id = $1 ORDER BY id`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	automations, err := pgx.CollectRows(rows, scanAutomation)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	return automations, nil
}

// ActiveAutomations returns the active automations of an organization for trigger that
// apply to questionnaireID, either bound to it or to every questionnaire.
func (p *AutomationProvider) ActiveAutomations(ctx context.Context, organizationID, questionnaireID int64, trigger string) ([]domains.EmailAutomation, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+automationColumns+`
		FROM email_automations
		WHERE organization_id = $1
		  AND trigger = $2
		  AND is_active
		  AND (questionnaire_id IS NULL OR questionnaire_id = $3)
		ORDER BY questionnaire_id NULLS LAST, id`,
		organizationID, trigger, questionnaireID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active automations: %w", err)
	}
	automations, err := pgx.CollectRows(rows, scanAutomation)
	if err != nil {
		return nil, fmt.Errorf("list active automations: %w", err)
	}
	return automations, nil
}

func (p *AutomationProvider) UpdateAutomation(ctx context.Context, id int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error) {
	rows, err := p.db.Query(ctx, `
		UPDATE email_automations
		SET template_id = $1, questionnaire_id = $2, trigger = $3, delay_hours = $4,
		    max_reminders = $5, is_active = COALESCE($6, is_active)
		WHERE id = $7
		RETURNING `+automationColumns,
		input.TemplateID, input.QuestionnaireID, input.Trigger, input.DelayHours, input.MaxReminders, input.IsActive, id,
	)
	if err != nil {
		return domains.EmailAutomation{}, fmt.Errorf("update automation: %w", storage.Classify(err))
	}
	updated, err := pgx.CollectOneRow(rows, scanAutomation)
	if err != nil {
		return domains.EmailAutomation{}, fmt.Errorf("update automation: %w", storage.Classify(err))
	}
	return updated, nil
}

func (p *AutomationProvider) DeleteAutomation(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM email_automations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete automation: %w", storage.ErrNotFound)
	}
	return nil
}

func scanAutomation(row pgx.CollectableRow) (domains.EmailAutomation, error) {
	var a domains.EmailAutomation
	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.TemplateID,
		&a.QuestionnaireID,
		&a.Trigger,
		&a.DelayHours,
		&a.MaxReminders,
		&a.IsActive,
		&a.CreatedAt,
	)
	return a, err
}
