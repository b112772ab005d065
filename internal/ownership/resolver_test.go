package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/shared"
)

type key struct {
	t  ResourceType
	id int64
}

type memoryLookup struct {
	owners map[key]*int64
	err    error
	calls  int
}

func (m *memoryLookup) LookupResourceOwner(_ context.Context, t ResourceType, id int64) (*int64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	owner, ok := m.owners[key{t, id}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return owner, nil
}

func ref(id int64) *int64 { return &id }

func client(id int64) auth.Principal {
	return auth.Principal{ID: id, Role: auth.RoleClient, Status: auth.StatusActive}
}

func TestChantierOwnership(t *testing.T) {
	lookup := &memoryLookup{owners: map[key]*int64{
		{Chantier, 10}: ref(5),
		{Chantier, 11}: nil,
	}}
	resolver := NewResolver(lookup)
	ctx := context.Background()

	visible, err := resolver.IsVisibleTo(ctx, client(5), Chantier, 10)
	require.NoError(t, err)
	require.True(t, visible)

	visible, err = resolver.IsVisibleTo(ctx, client(6), Chantier, 10)
	require.NoError(t, err)
	require.False(t, visible)

	for _, id := range []int64{5, 6} {
		visible, err = resolver.IsVisibleTo(ctx, client(id), Chantier, 11)
		require.NoError(t, err)
		require.False(t, visible, "unassigned chantier must stay hidden from client %d", id)
	}

	got, err := resolver.OwnerOf(ctx, Chantier, 10)
	require.NoError(t, err)
	require.True(t, got.OwnedBy(5))
}

func TestInvoiceWithoutChantierIsInvisible(t *testing.T) {
	lookup := &memoryLookup{owners: map[key]*int64{
		{Invoice, 1}: ref(5),
		{Invoice, 2}: nil,
		{Quote, 3}:   ref(5),
	}}
	resolver := NewResolver(lookup)
	ctx := context.Background()

	visible, err := resolver.IsVisibleTo(ctx, client(5), Invoice, 1)
	require.NoError(t, err)
	require.True(t, visible)

	visible, err = resolver.IsVisibleTo(ctx, client(5), Invoice, 2)
	require.NoError(t, err)
	require.False(t, visible)

	visible, err = resolver.IsVisibleTo(ctx, client(5), Quote, 3)
	require.NoError(t, err)
	require.True(t, visible)
}

func TestAbsentResource(t *testing.T) {
	resolver := NewResolver(&memoryLookup{})
	ctx := context.Background()

	visible, err := resolver.IsVisibleTo(ctx, client(5), Chantier, 404)
	require.NoError(t, err)
	require.False(t, visible)

	_, err = resolver.OwnerOf(ctx, Chantier, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStockHasNoOwnership(t *testing.T) {
	lookup := &memoryLookup{}
	resolver := NewResolver(lookup)
	ctx := context.Background()

	for _, rt := range []ResourceType{StockItem, StockMovement} {
		_, err := resolver.OwnerOf(ctx, rt, 1)
		require.ErrorIs(t, err, ErrNoOwnership)

		visible, err := resolver.IsVisibleTo(ctx, client(5), rt, 1)
		require.NoError(t, err)
		require.False(t, visible)
	}
	require.Zero(t, lookup.calls)
}

func TestUserOwnershipIsReflexive(t *testing.T) {
	resolver := NewResolver(&memoryLookup{})
	ctx := context.Background()

	visible, err := resolver.IsVisibleTo(ctx, client(5), User, 5)
	require.NoError(t, err)
	require.True(t, visible)

	visible, err = resolver.IsVisibleTo(ctx, client(5), User, 6)
	require.NoError(t, err)
	require.False(t, visible)
}

func TestPersistenceFailureSurfaces(t *testing.T) {
	boom := shared.Persistence("ownership: lookup chantier", errors.New("connection reset"))
	resolver := NewResolver(&memoryLookup{err: boom})

	_, err := resolver.IsVisibleTo(context.Background(), client(5), Chantier, 10)
	require.ErrorIs(t, err, shared.ErrPersistence)
}

func TestParseResourceType(t *testing.T) {
	rt, err := ParseResourceType(" Chantier ")
	require.NoError(t, err)
	require.Equal(t, Chantier, rt)
	require.True(t, rt.HasOwner())
	require.False(t, StockItem.HasOwner())

	_, err = ParseResourceType("payroll")
	require.Error(t, err)
}
