package stock

import (
	"context"
	"errors"
	"math"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/rbac"
	"github.com/batisseur/intranet/internal/shared"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	epsilon         = 0.0001
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, limit, offset int) ([]Item, int, error)
}

// Service coordinates stock operations.
type Service struct {
	repo  RepositoryPort
	guard *rbac.Guard
	trail rbac.AuditTrail
}

// NewService builds Service.
func NewService(repo RepositoryPort, guard *rbac.Guard, trail rbac.AuditTrail) *Service {
	return &Service{repo: repo, guard: guard, trail: trail}
}

// ListItems returns a page of stocked items. Requires manage_stock.
func (s *Service) ListItems(ctx context.Context, actor auth.Principal, page, limit int) (ItemsResult, error) {
	if _, err := s.guard.PDP().RequirePermission(actor, rbac.ManageStock); err != nil {
		return ItemsResult{}, err
	}
	page, limit, offset := shared.ClampPage(page, limit, defaultPageSize, maxPageSize)
	items, total, err := s.repo.ListItems(ctx, limit, offset)
	if err != nil {
		return ItemsResult{}, err
	}
	return ItemsResult{Items: items, Pagination: shared.NewPagination(page, limit, total)}, nil
}

// PostMovement applies a movement to an item's quantity. Requires manage_stock.
func (s *Service) PostMovement(ctx context.Context, actor auth.Principal, in MovementInput) (Movement, error) {
	req := rbac.Request{Principal: actor, Operation: rbac.OpCreate, Resource: ownership.StockMovement}
	if _, err := s.guard.Authorize(ctx, req, audit.ActionCreateStockMovement); err != nil {
		return Movement{}, err
	}
	delta, err := in.delta()
	if err != nil {
		return Movement{}, err
	}

	var posted Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		newQty := item.Quantity + delta
		if newQty < -epsilon {
			return ErrNegativeStock
		}
		if math.Abs(newQty) < epsilon {
			newQty = 0
		}
		m, err := tx.InsertMovement(ctx, Movement{
			ItemID:     item.ID,
			Type:       in.Type,
			Qty:        delta,
			BalanceQty: newQty,
			ChantierID: in.ChantierID,
			Note:       in.Note,
			CreatedBy:  actor.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateItemQuantity(ctx, item.ID, newQty); err != nil {
			return err
		}
		posted = m
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return Movement{}, shared.ErrNotFound
		}
		return Movement{}, err
	}

	details := map[string]any{
		"item_id":     posted.ItemID,
		"type":        string(posted.Type),
		"qty":         posted.Qty,
		"balance_qty": posted.BalanceQty,
	}
	if posted.ChantierID != nil {
		details["chantier_id"] = *posted.ChantierID
	}
	meta := shared.RequestMetaFromContext(ctx)
	s.trail.Track(ctx, audit.Entry{
		ActorID:      audit.Ref(actor.ID),
		Action:       audit.ActionCreateStockMovement,
		ResourceType: string(ownership.StockMovement),
		ResourceID:   audit.Ref(posted.ID),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Details:      details,
	})
	return posted, nil
}
