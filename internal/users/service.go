package users

import (
	"context"
	"fmt"

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

// Store defines data access methods for accounts.
type Store interface {
	ListUsers(ctx context.Context, limit, offset int) ([]auth.Principal, int, error)
	UpdateWithAudit(ctx context.Context, id int64, patch Patch, entry audit.Entry) (auth.Principal, error)
	DeleteWithAudit(ctx context.Context, id int64, entry audit.Entry) error
}

// EntryPreparer normalises audit entries before they are written by the store.
type EntryPreparer interface {
	Prepare(entry audit.Entry) (audit.Entry, error)
}

// Service handles account management.
type Service struct {
	store    Store
	guard    *rbac.Guard
	preparer EntryPreparer
}

// NewService builds Service instance.
func NewService(store Store, guard *rbac.Guard, preparer EntryPreparer) *Service {
	return &Service{store: store, guard: guard, preparer: preparer}
}

// ListUsers returns a page of accounts. Requires manage_users.
func (s *Service) ListUsers(ctx context.Context, actor auth.Principal, page, limit int) (ListResult, error) {
	if _, err := s.guard.PDP().RequirePermission(actor, rbac.ManageUsers); err != nil {
		return ListResult{}, err
	}
	page, limit, offset := shared.ClampPage(page, limit, defaultPageSize, maxPageSize)
	users, total, err := s.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Users: users, Pagination: shared.NewPagination(page, limit, total)}, nil
}

// UpdateUser applies patch to account id on behalf of actor. Role or status
// changes are privilege changes and are audited as such.
func (s *Service) UpdateUser(ctx context.Context, actor auth.Principal, id int64, patch Patch) (auth.Principal, error) {
	if patch.Empty() {
		return auth.Principal{}, fmt.Errorf("%w: nothing to update", shared.ErrValidation)
	}
	op, action := rbac.OpUpdate, audit.ActionUpdateUser
	if patch.ChangesPrivileges() {
		op, action = rbac.OpChangePrivileges, audit.ActionUpdateUserPrivileges
	}
	req := rbac.Request{Principal: actor, Operation: op, Resource: ownership.User, ResourceID: id}
	if _, err := s.guard.Authorize(ctx, req, action); err != nil {
		return auth.Principal{}, err
	}

	details := map[string]any{"fields": patch.Fields()}
	if patch.Role != nil {
		details["role"] = *patch.Role
	}
	if patch.Status != nil {
		details["status"] = *patch.Status
	}
	entry, err := s.prepare(ctx, actor, action, id, details)
	if err != nil {
		return auth.Principal{}, err
	}
	return s.store.UpdateWithAudit(ctx, id, patch, entry)
}

// DeleteUser removes account id on behalf of actor. Self-deletion is refused.
func (s *Service) DeleteUser(ctx context.Context, actor auth.Principal, id int64) error {
	req := rbac.Request{Principal: actor, Operation: rbac.OpDelete, Resource: ownership.User, ResourceID: id}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionDeleteUser); err != nil {
		return err
	}
	entry, err := s.prepare(ctx, actor, audit.ActionDeleteUser, id, nil)
	if err != nil {
		return err
	}
	return s.store.DeleteWithAudit(ctx, id, entry)
}

func (s *Service) prepare(ctx context.Context, actor auth.Principal, action string, id int64, details map[string]any) (audit.Entry, error) {
	meta := shared.RequestMetaFromContext(ctx)
	return s.preparer.Prepare(audit.Entry{
		ActorID:      audit.Ref(actor.ID),
		Action:       action,
		ResourceType: string(ownership.User),
		ResourceID:   audit.Ref(id),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Details:      details,
	})
}
