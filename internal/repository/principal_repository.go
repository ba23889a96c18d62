package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickbites/identity-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	invalidTextEncoding = "22P02"
)

var (
	// ErrEmailTaken is returned when the email registry already holds the address.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned when an admin username is already in use.
	ErrUsernameTaken = errors.New("username already in use")
)

const usernameIndex = "admins_username_idx"

// PrincipalRepository defines persistence access for one principal collection.
type PrincipalRepository interface {
	Role() domain.Role
	Create(ctx context.Context, principal *domain.Principal) error
	Update(ctx context.Context, principal *domain.Principal) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	LinkProvider(ctx context.Context, id, subject string) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]domain.Principal, error)
	Delete(ctx context.Context, id string) error
}

var tables = map[domain.Role]string{
	domain.RoleAdmin:  "admins",
	domain.RoleSeller: "sellers",
	domain.RoleUser:   "users",
}

type principalRepository struct {
	pool  *pgxpool.Pool
	role  domain.Role
	table string
}

// NewPrincipalRepository returns a Postgres-backed implementation for the role's table.
func NewPrincipalRepository(pool *pgxpool.Pool, role domain.Role) PrincipalRepository {
	table, ok := tables[role]
	if !ok {
		panic(fmt.Sprintf("repository: no table for role %q", role))
	}
	return &principalRepository{pool: pool, role: role, table: table}
}

func (r *principalRepository) Role() domain.Role {
	return r.role
}

// Create inserts the principal and claims its email in the shared registry in
// one transaction, so two concurrent registrations cannot both succeed.
func (r *principalRepository) Create(ctx context.Context, principal *domain.Principal) error {
	profile, err := json.Marshal(principal.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
        INSERT INTO %s (email, password_hash, name, profile, provider, provider_subject)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at, updated_at`, r.table)

		if err := tx.QueryRow(ctx, query,
			principal.Email,
			principal.PasswordHash,
			principal.Name,
			profile,
			principal.Provider,
			principal.ProviderSubject,
		).Scan(&principal.ID, &principal.CreatedAt, &principal.UpdatedAt); err != nil {
			return mapUniqueViolation(err)
		}

		const registry = `
        INSERT INTO principal_emails (email, role, principal_id)
        VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, registry, principal.Email, string(r.role), principal.ID); err != nil {
			return mapUniqueViolation(err)
		}
		principal.Role = r.role
		return nil
	})
}

func (r *principalRepository) Update(ctx context.Context, principal *domain.Principal) error {
	profile, err := json.Marshal(principal.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	query := fmt.Sprintf(`
        UPDATE %s SET name=$1, profile=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`, r.table)

	err = r.pool.QueryRow(ctx, query, principal.Name, profile, principal.ID).Scan(&principal.UpdatedAt)
	return mapUniqueViolation(mapInvalidID(err))
}

func (r *principalRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := fmt.Sprintf(`UPDATE %s SET password_hash=$1, updated_at=NOW() WHERE id=$2`, r.table)
	return r.execOne(ctx, query, passwordHash, id)
}

func (r *principalRepository) LinkProvider(ctx context.Context, id, subject string) error {
	query := fmt.Sprintf(`
        UPDATE %s SET provider_subject=$1, updated_at=NOW()
        WHERE id=$2 AND provider_subject IS NULL`, r.table)
	_, err := r.pool.Exec(ctx, query, subject, id)
	return err
}

func (r *principalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, principalColumns, r.table)
	p, err := r.scanOne(r.pool.QueryRow(ctx, query, id))
	return p, mapInvalidID(err)
}

func (r *principalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE email=$1`, principalColumns, r.table)
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *principalRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE email=$1)`, r.table)
	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *principalRepository) List(ctx context.Context, limit, offset int) ([]domain.Principal, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC LIMIT $1 OFFSET $2`, principalColumns, r.table)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Principal
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Delete removes the principal and releases its email in the registry.
func (r *principalRepository) Delete(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id=$1 RETURNING email`, r.table)
		var email string
		if err := tx.QueryRow(ctx, query, id).Scan(&email); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM principal_emails WHERE email=$1`, email)
		return err
	})
	return mapInvalidID(err)
}

const principalColumns = `id, email, password_hash, name, profile, provider, provider_subject, created_at, updated_at`

func (r *principalRepository) scanOne(row pgx.Row) (*domain.Principal, error) {
	var (
		p       domain.Principal
		profile []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.Name,
		&profile,
		&p.Provider,
		&p.ProviderSubject,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &p.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}
	p.Role = r.role
	return &p, nil
}

func (r *principalRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapInvalidID(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == usernameIndex {
			return ErrUsernameTaken
		}
		return ErrEmailTaken
	}
	return err
}

// mapInvalidID treats a malformed UUID as a missing row.
func mapInvalidID(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidTextEncoding {
		return pgx.ErrNoRows
	}
	return err
}
