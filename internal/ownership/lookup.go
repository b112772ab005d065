package ownership

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batisseur/intranet/internal/shared"
)

const (
	chantierOwnerSQL = `SELECT client_id FROM chantiers WHERE id = $1`
	invoiceOwnerSQL  = `SELECT c.client_id
FROM invoices i
LEFT JOIN chantiers c ON c.id = i.chantier_id
WHERE i.id = $1 AND i.kind = $2`
)

// PGLookup resolves owners from PostgreSQL.
type PGLookup struct {
	pool *pgxpool.Pool
}

// NewPGLookup constructs a PGLookup.
func NewPGLookup(pool *pgxpool.Pool) *PGLookup {
	return &PGLookup{pool: pool}
}

// LookupResourceOwner returns the owning client id of a chantier, invoice or quote.
func (l *PGLookup) LookupResourceOwner(ctx context.Context, t ResourceType, id int64) (*int64, error) {
	var row pgx.Row
	switch t {
	case Chantier:
		row = l.pool.QueryRow(ctx, chantierOwnerSQL, id)
	case Invoice, Quote:
		row = l.pool.QueryRow(ctx, invoiceOwnerSQL, id, string(t))
	default:
		return nil, ErrNoOwnership
	}
	var owner *int64
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.Persistence(fmt.Sprintf("ownership: lookup %s", t), err)
	}
	return owner, nil
}

var _ Lookup = (*PGLookup)(nil)
