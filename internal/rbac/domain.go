package rbac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/shared"
)

// ActionFamily groups the actions a role may be granted.
type ActionFamily string

const (
	ManageChantiers  ActionFamily = "manage_chantiers"
	ManageInvoices   ActionFamily = "manage_invoices"
	ManageStock      ActionFamily = "manage_stock"
	ManageUsers      ActionFamily = "manage_users"
	ViewOwnChantiers ActionFamily = "view_own_chantiers"
	ViewOwnInvoices  ActionFamily = "view_own_invoices"
)

// ParseActionFamily converts a name into an ActionFamily.
func ParseActionFamily(raw string) (ActionFamily, error) {
	switch f := ActionFamily(strings.ToLower(strings.TrimSpace(raw))); f {
	case ManageChantiers, ManageInvoices, ManageStock, ManageUsers, ViewOwnChantiers, ViewOwnInvoices:
		return f, nil
	default:
		return "", fmt.Errorf("rbac: unknown action family %q", raw)
	}
}

// Operation is what a request does to a resource.
type Operation string

const (
	OpView             Operation = "view"
	OpCreate           Operation = "create"
	OpUpdate           Operation = "update"
	OpDelete           Operation = "delete"
	OpChangePrivileges Operation = "change_privileges"
)

// ParseOperation converts a name into an Operation.
func ParseOperation(raw string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(raw))); op {
	case OpView, OpCreate, OpUpdate, OpDelete, OpChangePrivileges:
		return op, nil
	default:
		return "", fmt.Errorf("rbac: unknown operation %q", raw)
	}
}

// Request is a single authorization question. ResourceID zero addresses the
// collection rather than an instance.
type Request struct {
	Principal  auth.Principal
	Operation  Operation
	Resource   ownership.ResourceType
	ResourceID int64
}

// Decision is the outcome of Decide.
type Decision struct {
	Allowed   bool
	Family    ActionFamily
	Reason    shared.DenialReason
	Principal auth.Principal
	Resource  ownership.ResourceRef
}

// Matrix is the static role to action family grant table.
type Matrix struct {
	grants map[auth.Role]map[ActionFamily]struct{}
}

// NewMatrix builds a Matrix from explicit grants.
func NewMatrix(grants map[auth.Role][]ActionFamily) Matrix {
	m := Matrix{grants: make(map[auth.Role]map[ActionFamily]struct{}, len(grants))}
	for role, families := range grants {
		set := make(map[ActionFamily]struct{}, len(families))
		for _, f := range families {
			set[f] = struct{}{}
		}
		m.grants[role] = set
	}
	return m
}

// DefaultMatrix returns the intranet grant table.
func DefaultMatrix() Matrix {
	return NewMatrix(map[auth.Role][]ActionFamily{
		auth.RoleAdmin: {
			ManageChantiers, ManageInvoices, ManageStock, ManageUsers,
			ViewOwnChantiers, ViewOwnInvoices,
		},
		auth.RoleTravailleur: {
			ManageChantiers, ManageStock, ViewOwnChantiers, ViewOwnInvoices,
		},
		auth.RoleClient: {
			ViewOwnChantiers, ViewOwnInvoices,
		},
	})
}

// Grants reports whether role holds family.
func (m Matrix) Grants(role auth.Role, family ActionFamily) bool {
	_, ok := m.grants[role][family]
	return ok
}

// Families lists the families granted to role in name order.
func (m Matrix) Families(role auth.Role) []ActionFamily {
	families := make([]ActionFamily, 0, len(m.grants[role]))
	for f := range m.grants[role] {
		families = append(families, f)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
	return families
}

// familiesFor lists the families that can authorize op on t, in preference order.
func familiesFor(t ownership.ResourceType, op Operation) []ActionFamily {
	switch t {
	case ownership.Chantier:
		if op == OpView {
			return []ActionFamily{ManageChantiers, ViewOwnChantiers}
		}
		return []ActionFamily{ManageChantiers}
	case ownership.Invoice, ownership.Quote:
		if op == OpView {
			return []ActionFamily{ManageInvoices, ViewOwnInvoices}
		}
		return []ActionFamily{ManageInvoices}
	case ownership.StockItem, ownership.StockMovement:
		return []ActionFamily{ManageStock}
	case ownership.User:
		return []ActionFamily{ManageUsers}
	default:
		return nil
	}
}
