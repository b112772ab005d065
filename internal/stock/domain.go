package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/batisseur/intranet/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn receives material into the depot.
	MovementIn MovementType = "IN"
	// MovementOut sends material out, usually to a chantier.
	MovementOut MovementType = "OUT"
	// MovementAdjust corrects the counted quantity, up or down.
	MovementAdjust MovementType = "ADJUST"
)

// Item is a stocked material.
type Item struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Quantity  float64   `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Movement is one posted change of an item's quantity.
type Movement struct {
	ID         int64        `json:"id"`
	ItemID     int64        `json:"item_id"`
	Type       MovementType `json:"type"`
	Qty        float64      `json:"qty"`
	BalanceQty float64      `json:"balance_qty"`
	ChantierID *int64       `json:"chantier_id"`
	Note       string       `json:"note"`
	CreatedBy  int64        `json:"created_by"`
	CreatedAt  time.Time    `json:"created_at"`
}

// MovementInput describes a movement request. Qty is always positive for IN
// and OUT; ADJUST carries a signed delta.
type MovementInput struct {
	ItemID     int64        `json:"item_id" validate:"required,gt=0"`
	Type       MovementType `json:"type" validate:"required,oneof=IN OUT ADJUST"`
	Qty        float64      `json:"qty" validate:"required"`
	ChantierID *int64       `json:"chantier_id" validate:"omitempty,gt=0"`
	Note       string       `json:"note" validate:"max=500"`
}

// delta returns the signed quantity change of in.
func (in MovementInput) delta() (float64, error) {
	switch in.Type {
	case MovementIn:
		if in.Qty <= 0 {
			return 0, ErrInvalidQuantity
		}
		return in.Qty, nil
	case MovementOut:
		if in.Qty <= 0 {
			return 0, ErrInvalidQuantity
		}
		return -in.Qty, nil
	case MovementAdjust:
		if in.Qty == 0 {
			return 0, ErrInvalidQuantity
		}
		return in.Qty, nil
	default:
		return 0, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, in.Type)
	}
}

// ItemsResult is a page of items.
type ItemsResult struct {
	Items      []Item            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = fmt.Errorf("stock: negative stock not allowed: %w", shared.ErrValidation)

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = fmt.Errorf("stock: quantity must be positive: %w", shared.ErrValidation)

// ErrItemNotFound indicates the movement targets an unknown item.
var ErrItemNotFound = errors.New("stock: item not found")
