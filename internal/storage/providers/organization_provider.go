package providers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const organizationColumns = `id, name, slug, created_at, updated_at, deleted_at`

type OrganizationProvider struct {
	db *pgxpool.Pool
}

func NewOrganizationProvider(db *pgxpool.Pool) *OrganizationProvider {
	return &OrganizationProvider{
		db: db,
	}
}

func (p *OrganizationProvider) SaveOrganization(ctx context.Context, org domains.OrganizationCreate) (domains.Organization, error) {
	rows, err := p.db.Query(ctx,
		`INSERT INTO organizations (name, slug) VALUES ($1, $2) RETURNING `+organizationColumns,
		org.Name, org.Slug,
	)
	if err != nil {
		return domains.Organization{}, fmt.Errorf("insert organization: %w", storage.Classify(err))
	}
	created, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domains.Organization])
	if err != nil {
		return domains.Organization{}, fmt.Errorf("insert organization: %w", storage.Classify(err))
	}
	return created, nil
}

func (p *OrganizationProvider) GetOrganization(ctx context.Context, id int64) (domains.Organization, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return domains.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	org, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domains.Organization])
	if err != nil {
		return domains.Organization{}, fmt.Errorf("get organization: %w", storage.Classify(err))
	}
	return org, nil
}

func (p *OrganizationProvider) ListOrganizations(ctx context.Context) ([]domains.Organization, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	orgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[domains.Organization])
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

func (p *OrganizationProvider) UpdateOrganization(ctx context.Context, id int64, update domains.OrganizationUpdate) (domains.Organization, error) {
	if update.Name == nil {
		return p.GetOrganization(ctx, id)
	}

	rows, err := p.db.Query(ctx, `
		UPDATE organizations
		SET name = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL
		RETURNING `+organizationColumns,
		*update.Name, id,
	)
	if err != nil {
		return domains.Organization{}, fmt.Errorf("update organization: %w", err)
	}
	org, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domains.Organization])
	if err != nil {
		return domains.Organization{}, fmt.Errorf("update organization: %w", storage.Classify(err))
	}
	return org, nil
}

func (p *OrganizationProvider) DeleteOrganization(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE organizations SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete organization: %w", storage.ErrNotFound)
	}
	return nil
}
