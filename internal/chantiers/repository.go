package chantiers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batisseur/intranet/internal/platform/db"
	"github.com/batisseur/intranet/internal/shared"
)

const chantierColumns = `id, name, address, status, client_id, created_at, updated_at`

// Repository persists chantiers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a page of chantiers ordered by id and the total matching count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Chantier, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chantiers WHERE ($1::bigint IS NULL OR client_id = $1)`, filter.ClientID).Scan(&total); err != nil {
		return nil, 0, shared.Persistence("chantiers: count", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+chantierColumns+` FROM chantiers
WHERE ($1::bigint IS NULL OR client_id = $1)
ORDER BY id
LIMIT $2 OFFSET $3`, filter.ClientID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, shared.Persistence("chantiers: list", err)
	}
	defer rows.Close()
	out := make([]Chantier, 0, filter.Limit)
	for rows.Next() {
		c, err := scanChantier(rows)
		if err != nil {
			return nil, 0, shared.Persistence("chantiers: scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, shared.Persistence("chantiers: list", err)
	}
	return out, total, nil
}

// Get fetches a chantier by id.
func (r *Repository) Get(ctx context.Context, id int64) (Chantier, error) {
	c, err := scanChantier(r.pool.QueryRow(ctx, `SELECT `+chantierColumns+` FROM chantiers WHERE id = $1`, id))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Chantier{}, shared.Persistence("chantiers: get", err)
	}
	return c, err
}

// Create inserts a chantier.
func (r *Repository) Create(ctx context.Context, in Input) (Chantier, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO chantiers (name, address, status, client_id)
VALUES ($1, $2, $3, $4)
RETURNING `+chantierColumns, in.Name, in.Address, string(in.Status), in.ClientID)
	c, err := scanChantier(row)
	return c, mapWriteError("create", err)
}

// Update replaces the writable fields of chantier id.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (Chantier, error) {
	row := r.pool.QueryRow(ctx, `UPDATE chantiers
SET name = $2, address = $3, status = $4, client_id = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+chantierColumns, id, in.Name, in.Address, string(in.Status), in.ClientID)
	c, err := scanChantier(row)
	return c, mapWriteError("update", err)
}

// Delete removes chantier id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chantiers WHERE id = $1`, id)
	if err != nil {
		return mapWriteError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanChantier(row pgx.Row) (Chantier, error) {
	var (
		c      Chantier
		status string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Address, &status, &c.ClientID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chantier{}, shared.ErrNotFound
		}
		return Chantier{}, err
	}
	c.Status = Status(status)
	return c, nil
}

func mapWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shared.ErrNotFound):
		return err
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: client_id does not reference a user", shared.ErrValidation)
	default:
		return shared.Persistence("chantiers: "+op, err)
	}
}

var _ Store = (*Repository)(nil)
