package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const userColumns = `id, organization_id, full_name, email, role, passhash, created_at, disabled_at`

type UserProvider struct {
	db *pgxpool.Pool
}

func NewUserProvider(db *pgxpool.Pool) *UserProvider {
	return &UserProvider{
		db: db,
	}
}

func (p *UserProvider) SaveUser(ctx context.Context, user domains.UserToSave) (domains.User, error) {
	query := `
		INSERT INTO users (organization_id, full_name, email, role, passhash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	rows, err := p.db.Query(ctx, query,
		user.OrganizationID,
		user.FullName,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.Role,
		[]byte(user.PassHash),
	)
	if err != nil {
		return domains.User{}, fmt.Errorf("insert user: %w", storage.Classify(err))
	}
	created, err := pgx.CollectOneRow(rows, scanUser)
	if err != nil {
		return domains.User{}, fmt.Errorf("insert user: %w", storage.Classify(err))
	}
	return created, nil
}

func (p *UserProvider) GetUserByEmail(ctx context.Context, email string) (domains.User, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email),
	)
	if err != nil {
		return domains.User{}, fmt.Errorf("get user by email: %w", err)
	}
	user, err := pgx.CollectOneRow(rows, scanUser)
	if err != nil {
		return domains.User{}, fmt.Errorf("get user by email: %w", storage.Classify(err))
	}
	return user, nil
}

func (p *UserProvider) GetUserByID(ctx context.Context, id int64) (domains.User, error) {
	rows, err := p.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return domains.User{}, fmt.Errorf("get user: %w", err)
	}
	user, err := pgx.CollectOneRow(rows, scanUser)
	if err != nil {
		return domains.User{}, fmt.Errorf("get user: %w", storage.Classify(err))
	}
	return user, nil
}

func (p *UserProvider) ListUsersByOrganization(ctx context.Context, organizationID int64) ([]domains.User, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE organization_id = $1 ORDER BY id`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (p *UserProvider) CountUsersByOrganization(ctx context.Context, organizationID int64) (int, error) {
	var count int
	if err := p.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE organization_id = $1`,
		organizationID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func scanUser(row pgx.CollectableRow) (domains.User, error) {
	var (
		user     domains.User
		passHash []byte
	)
	err := row.Scan(
		&user.ID,
		&user.OrganizationID,
		&user.FullName,
		&user.Email,
		&user.Role,
		&passHash,
		&user.CreatedAt,
		&user.DisabledAt,
	)
	user.PassHash = string(passHash)
	return user, err
}
