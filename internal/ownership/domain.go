// Package ownership answers whether a principal relates to a resource instance.
package ownership

import (
	"errors"
	"fmt"
	"strings"
)

// ResourceType is the closed set of guarded resource families.
type ResourceType string

const (
	Chantier      ResourceType = "chantier"
	Invoice       ResourceType = "invoice"
	Quote         ResourceType = "quote"
	StockItem     ResourceType = "stock_item"
	StockMovement ResourceType = "stock_movement"
	User          ResourceType = "user"
)

// ErrNoOwnership is returned for resource types without an owner concept.
var ErrNoOwnership = errors.New("ownership: resource type has no owner")

// ParseResourceType converts a stored or requested name into a ResourceType.
func ParseResourceType(raw string) (ResourceType, error) {
	switch t := ResourceType(strings.ToLower(strings.TrimSpace(raw))); t {
	case Chantier, Invoice, Quote, StockItem, StockMovement, User:
		return t, nil
	default:
		return "", fmt.Errorf("ownership: unknown resource type %q", raw)
	}
}

// HasOwner reports whether instances of t carry an owner.
func (t ResourceType) HasOwner() bool {
	switch t {
	case Chantier, Invoice, Quote, User:
		return true
	default:
		return false
	}
}

// ResourceRef names a resource instance and its owning principal. OwnerID is
// nil when the instance has no owner, such as an invoice without a chantier.
type ResourceRef struct {
	Type    ResourceType `json:"type"`
	ID      int64        `json:"id"`
	OwnerID *int64       `json:"owner_id,omitempty"`
}

// OwnedBy reports whether principalID owns the instance.
func (r ResourceRef) OwnedBy(principalID int64) bool {
	return r.OwnerID != nil && *r.OwnerID == principalID
}
