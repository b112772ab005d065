package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batisseur/intranet/internal/platform/db"
	"github.com/batisseur/intranet/internal/shared"
)

const (
	invoiceColumns = `i.id, i.kind, i.number, i.chantier_id, i.amount_cents, i.issued_at, i.created_at`
	clientScope    = `($1::bigint IS NULL OR c.client_id = $1)`
)

// Repository persists invoices and quotes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a page of documents ordered by id and the total matching count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices i
LEFT JOIN chantiers c ON c.id = i.chantier_id
WHERE `+clientScope, filter.ClientID).Scan(&total)
	if err != nil {
		return nil, 0, shared.Persistence("invoices: count", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices i
LEFT JOIN chantiers c ON c.id = i.chantier_id
WHERE `+clientScope+`
ORDER BY i.id
LIMIT $2 OFFSET $3`, filter.ClientID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, shared.Persistence("invoices: list", err)
	}
	defer rows.Close()
	out := make([]Invoice, 0, filter.Limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, shared.Persistence("invoices: scan", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, shared.Persistence("invoices: list", err)
	}
	return out, total, nil
}

// KindOf returns the kind of document id.
func (r *Repository) KindOf(ctx context.Context, id int64) (Kind, error) {
	var kind string
	if err := r.pool.QueryRow(ctx, `SELECT kind FROM invoices WHERE id = $1`, id).Scan(&kind); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", shared.Persistence("invoices: kind", err)
	}
	return Kind(kind), nil
}

// Get fetches document id.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id = $1`, id))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Invoice{}, shared.Persistence("invoices: get", err)
	}
	return inv, err
}

// Create inserts a document.
func (r *Repository) Create(ctx context.Context, in Input) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO invoices AS i (kind, number, chantier_id, amount_cents)
VALUES ($1, $2, $3, $4)
RETURNING `+invoiceColumns, string(in.Kind), in.Number, in.ChantierID, in.AmountCents)
	inv, err := scanInvoice(row)
	switch {
	case err == nil:
		return inv, nil
	case db.IsUniqueViolation(err):
		return Invoice{}, fmt.Errorf("%w: number already used", shared.ErrValidation)
	case db.IsForeignKeyViolation(err):
		return Invoice{}, fmt.Errorf("%w: chantier_id does not exist", shared.ErrValidation)
	default:
		return Invoice{}, shared.Persistence("invoices: create", err)
	}
}

// Delete removes document id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return shared.Persistence("invoices: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv  Invoice
		kind string
	)
	if err := row.Scan(&inv.ID, &kind, &inv.Number, &inv.ChantierID, &inv.AmountCents, &inv.IssuedAt, &inv.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	inv.Kind = Kind(kind)
	return inv, nil
}

var _ Store = (*Repository)(nil)
