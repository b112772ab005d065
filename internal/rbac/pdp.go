package rbac

import (
	"context"
	"errors"

	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/shared"
)

// Identity resolves credentials into principals.
type Identity interface {
	Resolve(ctx context.Context, credential string) (auth.Principal, error)
}

// Ownership answers instance-level visibility questions.
type Ownership interface {
	OwnerOf(ctx context.Context, t ownership.ResourceType, id int64) (ownership.ResourceRef, error)
	IsVisibleTo(ctx context.Context, p auth.Principal, t ownership.ResourceType, id int64) (bool, error)
}

// DecisionObserver receives every decision outcome, typically for metrics.
type DecisionObserver interface {
	ObserveDecision(family string, allowed bool, reason string)
}

// PDP is the policy decision point. It has no side effects beyond observation
// and evaluates against the current persisted snapshot on every call.
type PDP struct {
	identity  Identity
	ownership Ownership
	matrix    Matrix
	observer  DecisionObserver
}

// Option customises a PDP.
type Option func(*PDP)

// WithMatrix overrides the default grant table.
func WithMatrix(m Matrix) Option {
	return func(p *PDP) { p.matrix = m }
}

// WithObserver reports decisions to o.
func WithObserver(o DecisionObserver) Option {
	return func(p *PDP) { p.observer = o }
}

// NewPDP constructs a PDP using DefaultMatrix unless overridden.
func NewPDP(identity Identity, owners Ownership, opts ...Option) *PDP {
	p := &PDP{identity: identity, ownership: owners, matrix: DefaultMatrix()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Matrix exposes the grant table in use.
func (p *PDP) Matrix() Matrix {
	return p.matrix
}

// RequireAuthenticated resolves credential into an active principal.
func (p *PDP) RequireAuthenticated(ctx context.Context, credential string) (auth.Principal, error) {
	return p.identity.Resolve(ctx, credential)
}

// RequireRole checks that principal is active and holds one of roles.
func (p *PDP) RequireRole(principal auth.Principal, roles ...auth.Role) (auth.Principal, error) {
	if !principal.IsActive() {
		return auth.Principal{}, shared.AccountDisabled()
	}
	for _, role := range roles {
		if principal.Role == role {
			return principal, nil
		}
	}
	return auth.Principal{}, shared.Forbidden(shared.ReasonRoleDenied)
}

// RequirePermission checks that principal is active and its role grants family.
func (p *PDP) RequirePermission(principal auth.Principal, family ActionFamily) (auth.Principal, error) {
	if !principal.IsActive() {
		p.observe(family, false, shared.ReasonAccountDisabled)
		return auth.Principal{}, shared.AccountDisabled()
	}
	if !p.matrix.Grants(principal.Role, family) {
		p.observe(family, false, shared.ReasonRoleDenied)
		return auth.Principal{}, shared.Forbidden(shared.ReasonRoleDenied)
	}
	p.observe(family, true, shared.ReasonNone)
	return principal, nil
}

// CanAccessResource reports whether principal may see the instance. Only
// persistence failures produce an error.
func (p *PDP) CanAccessResource(ctx context.Context, principal auth.Principal, t ownership.ResourceType, id int64) (bool, error) {
	if !principal.IsActive() {
		return false, nil
	}
	if t == ownership.User {
		return principal.ID == id || principal.IsAdmin(), nil
	}
	switch principal.Role {
	case auth.RoleAdmin, auth.RoleTravailleur:
		switch t {
		case ownership.Chantier, ownership.Invoice, ownership.Quote, ownership.StockItem, ownership.StockMovement:
			return true, nil
		}
		return false, nil
	case auth.RoleClient:
		switch t {
		case ownership.Chantier, ownership.Invoice, ownership.Quote:
			return p.ownership.IsVisibleTo(ctx, principal, t, id)
		}
		return false, nil
	default:
		return false, nil
	}
}

// CanModifyUser reports whether principal may edit the target account's profile.
func (p *PDP) CanModifyUser(principal auth.Principal, targetID int64) bool {
	return principal.ID == targetID || principal.IsAdmin()
}

// CanDeleteUser reports whether principal may delete the target account.
// Nobody may delete their own account.
func (p *PDP) CanDeleteUser(principal auth.Principal, targetID int64) bool {
	if principal.ID == targetID {
		return false
	}
	return principal.IsAdmin()
}

// Decide evaluates req in order: account status, role grant, client
// ownership, then self-protection. The first failing step fixes the reason.
func (p *PDP) Decide(ctx context.Context, req Request) (Decision, error) {
	principal := req.Principal
	decision := Decision{
		Principal: principal,
		Resource:  ownership.ResourceRef{Type: req.Resource, ID: req.ResourceID},
	}
	families := familiesFor(req.Resource, req.Operation)
	if len(families) > 0 {
		decision.Family = families[0]
	}

	if !principal.IsActive() {
		return p.deny(decision, shared.ReasonAccountDisabled, shared.AccountDisabled())
	}

	selfTarget := req.Resource == ownership.User && req.ResourceID != 0 && req.ResourceID == principal.ID
	granted := false
	for _, f := range families {
		if p.matrix.Grants(principal.Role, f) {
			decision.Family = f
			granted = true
			break
		}
	}
	if !granted && !selfTarget {
		return p.deny(decision, shared.ReasonRoleDenied, shared.Forbidden(shared.ReasonRoleDenied))
	}

	if principal.Role == auth.RoleClient && req.ResourceID != 0 && isOwnershipGated(req.Resource) {
		ref, err := p.ownership.OwnerOf(ctx, req.Resource, req.ResourceID)
		switch {
		case err == nil:
			decision.Resource = ref
		case errors.Is(err, shared.ErrNotFound):
		default:
			return decision, err
		}
		if !ref.OwnedBy(principal.ID) {
			return p.deny(decision, shared.ReasonOwnershipDenied, shared.Forbidden(shared.ReasonOwnershipDenied))
		}
	}

	if selfTarget {
		switch {
		case req.Operation == OpDelete:
			return p.deny(decision, shared.ReasonSelfProtection, shared.Forbidden(shared.ReasonSelfProtection))
		case req.Operation == OpChangePrivileges && !principal.IsAdmin():
			return p.deny(decision, shared.ReasonSelfProtection, shared.Forbidden(shared.ReasonSelfProtection))
		}
	}

	decision.Allowed = true
	p.observe(decision.Family, true, shared.ReasonNone)
	return decision, nil
}

func (p *PDP) deny(d Decision, reason shared.DenialReason, err error) (Decision, error) {
	d.Allowed = false
	d.Reason = reason
	p.observe(d.Family, false, reason)
	return d, err
}

func (p *PDP) observe(family ActionFamily, allowed bool, reason shared.DenialReason) {
	if p.observer != nil {
		p.observer.ObserveDecision(string(family), allowed, string(reason))
	}
}

func isOwnershipGated(t ownership.ResourceType) bool {
	switch t {
	case ownership.Chantier, ownership.Invoice, ownership.Quote:
		return true
	default:
		return false
	}
}
