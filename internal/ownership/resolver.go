package ownership

import (
	"context"
	"errors"

	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/shared"
)

// Lookup reads the current owner of a resource instance.
// Implementations return shared.ErrNotFound for absent instances.
type Lookup interface {
	LookupResourceOwner(ctx context.Context, t ResourceType, id int64) (*int64, error)
}

// Resolver evaluates ownership against current persisted state. It holds no cache.
type Resolver struct {
	lookup Lookup
}

// NewResolver constructs a Resolver.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// OwnerOf returns the reference for an instance, or shared.ErrNotFound.
func (r *Resolver) OwnerOf(ctx context.Context, t ResourceType, id int64) (ResourceRef, error) {
	switch t {
	case User:
		return ResourceRef{Type: User, ID: id, OwnerID: &id}, nil
	case Chantier, Invoice, Quote:
		owner, err := r.lookup.LookupResourceOwner(ctx, t, id)
		if err != nil {
			return ResourceRef{}, err
		}
		return ResourceRef{Type: t, ID: id, OwnerID: owner}, nil
	default:
		return ResourceRef{}, ErrNoOwnership
	}
}

// IsVisibleTo reports whether p owns the instance. Absent instances and
// ownerless types are invisible; only persistence failures are returned.
func (r *Resolver) IsVisibleTo(ctx context.Context, p auth.Principal, t ResourceType, id int64) (bool, error) {
	ref, err := r.OwnerOf(ctx, t, id)
	switch {
	case err == nil:
		return ref.OwnedBy(p.ID), nil
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ErrNoOwnership):
		return false, nil
	default:
		return false, err
	}
}
