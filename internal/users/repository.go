package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/platform/db"
	"github.com/batisseur/intranet/internal/shared"
)

// AuditTxWriter appends audit entries inside a caller-owned transaction.
type AuditTxWriter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, entry audit.Entry) (audit.Record, error)
}

// Repository provides PostgreSQL backed persistence. Every mutation commits
// together with its audit record or not at all.
type Repository struct {
	pool  *pgxpool.Pool
	audit AuditTxWriter
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, auditWriter AuditTxWriter) *Repository {
	return &Repository{pool: pool, audit: auditWriter}
}

// ListUsers returns one page of accounts ordered by id and the total count.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]auth.Principal, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, shared.Persistence("users: count", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, email, name, role, status FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, shared.Persistence("users: list", err)
	}
	defer rows.Close()
	users := make([]auth.Principal, 0, limit)
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, shared.Persistence("users: list", err)
	}
	return users, total, nil
}

// UpdateWithAudit applies patch to account id and appends entry in the same transaction.
func (r *Repository) UpdateWithAudit(ctx context.Context, id int64, patch Patch, entry audit.Entry) (auth.Principal, error) {
	var updated auth.Principal
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE users SET
	name = COALESCE($2, name),
	email = COALESCE($3, email),
	role = COALESCE($4, role),
	status = COALESCE($5, status),
	updated_at = NOW()
WHERE id = $1
RETURNING id, email, name, role, status`, id, patch.Name, patch.Email, patch.Role, patch.Status)
		p, err := scanPrincipal(row)
		if err != nil {
			return err
		}
		if _, err := r.audit.InsertTx(ctx, tx, entry); err != nil {
			return shared.Persistence("users: audit update", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return auth.Principal{}, fmt.Errorf("%w: email already in use", shared.ErrValidation)
		}
		return auth.Principal{}, err
	}
	return updated, nil
}

// DeleteWithAudit removes account id and appends entry in the same transaction.
func (r *Repository) DeleteWithAudit(ctx context.Context, id int64, entry audit.Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return shared.Persistence("users: delete", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := r.audit.InsertTx(ctx, tx, entry); err != nil {
			return shared.Persistence("users: audit delete", err)
		}
		return nil
	})
}

func scanPrincipal(row pgx.Row) (auth.Principal, error) {
	var (
		p            auth.Principal
		role, status string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Principal{}, shared.ErrNotFound
		}
		return auth.Principal{}, shared.Persistence("users: scan", err)
	}
	var err error
	if p.Role, err = auth.ParseRole(role); err != nil {
		return auth.Principal{}, err
	}
	if p.Status, err = auth.ParseStatus(status); err != nil {
		return auth.Principal{}, err
	}
	return p, nil
}

var _ Store = (*Repository)(nil)
