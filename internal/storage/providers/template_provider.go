package providers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const templateColumns = `id, organization_id, name, subject, body_html, body_text, category, is_active, created_at, updated_at`

type TemplateProvider struct {
	db *pgxpool.Pool
}

func NewTemplateProvider(pg *pgxpool.Pool) *TemplateProvider {
	return &TemplateProvider{
		db: pg,
	}
}

func (s *TemplateProvider) SaveTemplate(ctx context.Context, organizationID int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error) {
	rows, err := s.db.Query(ctx, `
		INSERT INTO email_templates (organization_id, name, subject, body_html, body_text, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+templateColumns,
		organizationID, input.Name, input.Subject, input.BodyHTML, input.BodyText, input.Category,
	)
	if err != nil {
		return domains.EmailTemplate{}, fmt.Errorf("insert template: %w", storage.Classify(err))
	}
	created, err := pgx.CollectOneRow(rows, scanTemplate)
	if err != nil {
		return domains.EmailTemplate{}, fmt.Errorf("insert template: %w", storage.Classify(err))
	}
	return created, nil
}

func (s *TemplateProvider) GetTemplate(ctx context.Context, id int64) (domains.EmailTemplate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE id = $1 AND is_active`,
		id,
	)
	if err != nil {
		return domains.EmailTemplate{}, fmt.Errorf("get template: %w", err)
	}
	template, err := pgx.CollectOneRow(rows, scanTemplate)
	if err != nil {
		return domains.EmailTemplate{}, fmt.Errorf("get template: %w", storage.Classify(err))
	}
	return template, nil
}

func (s *TemplateProvider) ListTemplates(ctx context.Context, organizationID int64) ([]domains.EmailTemplate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE organization_id = $1 AND is_active ORDER BY name, id`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	templates, err := pgx.CollectRows(rows, scanTemplate)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (s *TemplateProvider) UpdateTemplate(ctx context.Context, id int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE email_templates
		SET name = $1, subject = $2, body_html = $3, body_text = $4, category = $5, updated_at = now()
		WHERE id = $6 AND is_active
		RETURNING `+templateColumns,
		input.Name, input.Subject, input.BodyHTML, input.BodyText, input.Category, id,
	)
	if err != nil {
		return domains.EmailTemplate{}, fmt.Errorf("update template: %w", err)
	}
	updated, err := pgx.CollectOneRow(rows, scanTemplate)
	if err != nil {
		return domains.EmailTemplate{}, fmt.Errorf("update template: %w", storage.Classify(err))
	}
	return updated, nil
}

func (s *TemplateProvider) DeleteTemplate(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE email_templates SET is_active = FALSE, updated_at = now() WHERE id = $1 AND is_active`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete template: %w", storage.ErrNotFound)
	}
	return nil
}

func scanTemplate(row pgx.CollectableRow) (domains.EmailTemplate, error) {
	var t domains.EmailTemplate
	err := row.Scan(
		&t.ID,
		&t.OrganizationID,
		&t.Name,
		&t.Subject,
		&t.BodyHTML,
		&t.BodyText,
		&t.Category,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}
