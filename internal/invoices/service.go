package invoices

import (
	"context"
	"errors"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/rbac"
	"github.com/batisseur/intranet/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store abstracts invoice persistence.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	KindOf(ctx context.Context, id int64) (Kind, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	Create(ctx context.Context, in Input) (Invoice, error)
	Delete(ctx context.Context, id int64) error
}

// Service coordinates invoice and quote operations behind the PDP.
type Service struct {
	store Store
	guard *rbac.Guard
	trail rbac.AuditTrail
}

// NewService builds Service.
func NewService(store Store, guard *rbac.Guard, trail rbac.AuditTrail) *Service {
	return &Service{store: store, guard: guard, trail: trail}
}

// List returns documents visible to actor. Clients only see documents linked
// to their own chantiers.
func (s *Service) List(ctx context.Context, actor auth.Principal, page, limit int) (ListResult, error) {
	req := rbac.Request{Principal: actor, Operation: rbac.OpView, Resource: ownership.Invoice}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionViewInvoice); err != nil {
		return ListResult{}, err
	}
	page, limit, offset := shared.ClampPage(page, limit, defaultPageSize, maxPageSize)
	filter := ListFilter{Limit: limit, Offset: offset}
	if actor.Role == auth.RoleClient {
		filter.ClientID = audit.Ref(actor.ID)
	}
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Invoices: items, Pagination: shared.NewPagination(page, limit, total)}, nil
}

// Get returns document id if actor may view it.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id int64) (Invoice, error) {
	kind, err := s.kindOf(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	req := rbac.Request{Principal: actor, Operation: rbac.OpView, Resource: kind.ResourceType(), ResourceID: id}
	if _, err := s.guard.Authorize(ctx, req, kind.viewAction()); err != nil {
		return Invoice{}, err
	}
	return s.store.Get(ctx, id)
}

// Create adds an invoice or quote. Requires manage_invoices.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in Input) (Invoice, error) {
	req := rbac.Request{Principal: actor, Operation: rbac.OpCreate, Resource: in.Kind.ResourceType()}
	if _, err := s.guard.Authorize(ctx, req, in.Kind.createAction()); err != nil {
		return Invoice{}, err
	}
	created, err := s.store.Create(ctx, in)
	if err != nil {
		return Invoice{}, err
	}
	details := map[string]any{"number": created.Number, "amount_cents": created.AmountCents}
	if created.ChantierID != nil {
		details["chantier_id"] = *created.ChantierID
	}
	s.track(ctx, actor, in.Kind, in.Kind.createAction(), created.ID, details)
	return created, nil
}

// Delete removes document id. Requires manage_invoices.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id int64) error {
	kind, err := s.kindOf(ctx, id)
	if err != nil {
		return err
	}
	req := rbac.Request{Principal: actor, Operation: rbac.OpDelete, Resource: kind.ResourceType(), ResourceID: id}
	if _, err := s.guard.Authorize(ctx, req, kind.deleteAction()); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.track(ctx, actor, kind, kind.deleteAction(), id, nil)
	return nil
}

// kindOf treats unknown ids as invoices so the PDP still runs and clients
// cannot tell a missing document from someone else's.
func (s *Service) kindOf(ctx context.Context, id int64) (Kind, error) {
	kind, err := s.store.KindOf(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return KindInvoice, nil
	}
	return kind, err
}

func (s *Service) track(ctx context.Context, actor auth.Principal, kind Kind, action string, id int64, details map[string]any) {
	meta := shared.RequestMetaFromContext(ctx)
	s.trail.Track(ctx, audit.Entry{
		ActorID:      audit.Ref(actor.ID),
		Action:       action,
		ResourceType: string(kind.ResourceType()),
		ResourceID:   audit.Ref(id),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Details:      details,
	})
}
