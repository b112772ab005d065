package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batisseur/intranet/internal/shared"
)

// PrincipalStore resolves principals by id.
type PrincipalStore interface {
	LookupPrincipal(ctx context.Context, id int64) (Principal, error)
}

// Repository defines persistence operations for the auth module.
type Repository interface {
	PrincipalStore
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, name, role, status, password_hash, created_at, updated_at FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	var (
		user         User
		role, status string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &status, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.Persistence("auth: find by email", err)
	}
	if err := fillPrincipal(&user.Principal, role, status); err != nil {
		return nil, err
	}
	return &user, nil
}

// LookupPrincipal fetches the current role and status of a principal.
func (r *PGRepository) LookupPrincipal(ctx context.Context, id int64) (Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, name, role, status FROM users WHERE id = $1`, id)
	var (
		p            Principal
		role, status string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, shared.Persistence("auth: lookup principal", err)
	}
	if err := fillPrincipal(&p, role, status); err != nil {
		return Principal{}, err
	}
	return p, nil
}

func fillPrincipal(p *Principal, role, status string) error {
	var err error
	if p.Role, err = ParseRole(role); err != nil {
		return err
	}
	if p.Status, err = ParseStatus(status); err != nil {
		return err
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
