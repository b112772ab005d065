package chantiers

import (
	"context"

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

// Store abstracts chantier persistence.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Chantier, int, error)
	Get(ctx context.Context, id int64) (Chantier, error)
	Create(ctx context.Context, in Input) (Chantier, error)
	Update(ctx context.Context, id int64, in Input) (Chantier, error)
	Delete(ctx context.Context, id int64) error
}

// Service coordinates chantier operations behind the PDP.
type Service struct {
	store Store
	guard *rbac.Guard
	trail rbac.AuditTrail
}

// NewService builds Service.
func NewService(store Store, guard *rbac.Guard, trail rbac.AuditTrail) *Service {
	return &Service{store: store, guard: guard, trail: trail}
}

// List returns chantiers visible to actor. Clients only see their own.
func (s *Service) List(ctx context.Context, actor auth.Principal, page, limit int) (ListResult, error) {
	req := rbac.Request{Principal: actor, Operation: rbac.OpView, Resource: ownership.Chantier}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionViewChantier); err != nil {
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
	return ListResult{Chantiers: items, Pagination: shared.NewPagination(page, limit, total)}, nil
}

// Get returns chantier id if actor may view it.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id int64) (Chantier, error) {
	req := rbac.Request{Principal: actor, Operation: rbac.OpView, Resource: ownership.Chantier, ResourceID: id}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionViewChantier); err != nil {
		return Chantier{}, err
	}
	return s.store.Get(ctx, id)
}

// Create adds a chantier. Requires manage_chantiers.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in Input) (Chantier, error) {
	req := rbac.Request{Principal: actor, Operation: rbac.OpCreate, Resource: ownership.Chantier}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionCreateChantier); err != nil {
		return Chantier{}, err
	}
	created, err := s.store.Create(ctx, in.normalized())
	if err != nil {
		return Chantier{}, err
	}
	s.track(ctx, actor, audit.ActionCreateChantier, created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Update replaces chantier id. Requires manage_chantiers.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id int64, in Input) (Chantier, error) {
	req := rbac.Request{Principal: actor, Operation: rbac.OpUpdate, Resource: ownership.Chantier, ResourceID: id}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionUpdateChantier); err != nil {
		return Chantier{}, err
	}
	updated, err := s.store.Update(ctx, id, in.normalized())
	if err != nil {
		return Chantier{}, err
	}
	s.track(ctx, actor, audit.ActionUpdateChantier, id, map[string]any{"name": updated.Name, "status": string(updated.Status)})
	return updated, nil
}

// Delete removes chantier id. Requires manage_chantiers.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id int64) error {
	req := rbac.Request{Principal: actor, Operation: rbac.OpDelete, Resource: ownership.Chantier, ResourceID: id}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionDeleteChantier); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.track(ctx, actor, audit.ActionDeleteChantier, id, nil)
	return nil
}

func (s *Service) track(ctx context.Context, actor auth.Principal, action string, id int64, details map[string]any) {
	meta := shared.RequestMetaFromContext(ctx)
	s.trail.Track(ctx, audit.Entry{
		ActorID:      audit.Ref(actor.ID),
		Action:       action,
		ResourceType: string(ownership.Chantier),
		ResourceID:   audit.Ref(id),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Details:      details,
	})
}
