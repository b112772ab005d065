package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batisseur/intranet/internal/platform/db"
	"github.com/batisseur/intranet/internal/shared"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, qty float64) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ListItems returns a page of items ordered by sku and the total count.
func (r *Repository) ListItems(ctx context.Context, limit, offset int) ([]Item, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items`).Scan(&total); err != nil {
		return nil, 0, shared.Persistence("stock: count items", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, unit, quantity, updated_at
FROM stock_items
ORDER BY sku, id
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, shared.Persistence("stock: list items", err)
	}
	defer rows.Close()
	items := make([]Item, 0, limit)
	for rows.Next() {
		var (
			item Item
			qty  pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &item.Unit, &qty, &item.UpdatedAt); err != nil {
			return nil, 0, shared.Persistence("stock: scan item", err)
		}
		item.Quantity = numericToFloat(qty)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, shared.Persistence("stock: list items", err)
	}
	return items, total, nil
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	var (
		item Item
		qty  pgtype.Numeric
	)
	err := r.tx.QueryRow(ctx, `SELECT id, sku, name, unit, quantity, updated_at
FROM stock_items WHERE id = $1 FOR UPDATE`, itemID).Scan(&item.ID, &item.SKU, &item.Name, &item.Unit, &qty, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, shared.Persistence("stock: lock item", err)
	}
	item.Quantity = numericToFloat(qty)
	return item, nil
}

func (r *txRepo) UpdateItemQuantity(ctx context.Context, itemID int64, qty float64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE stock_items SET quantity = $2, updated_at = NOW() WHERE id = $1`, itemID, floatToNumeric(qty)); err != nil {
		return shared.Persistence("stock: update quantity", err)
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, movement_type, qty, balance_qty, chantier_id, note, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`,
		m.ItemID, string(m.Type), floatToNumeric(m.Qty), floatToNumeric(m.BalanceQty), m.ChantierID, m.Note, m.CreatedBy,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Movement{}, fmt.Errorf("%w: chantier_id does not exist", shared.ErrValidation)
		}
		return Movement{}, shared.Persistence("stock: insert movement", err)
	}
	return m, nil
}

func numericToFloat(n pgtype.Numeric) float64 {
	f, _ := n.Float64Value()
	return f.Float64
}

func floatToNumeric(f float64) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(fmt.Sprintf("%f", f))
	return n
}

var _ RepositoryPort = (*Repository)(nil)
