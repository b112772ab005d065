package rbac

import (
	"context"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/shared"
)

// AuditTrail is the recorder surface used for denial records.
type AuditTrail interface {
	Track(ctx context.Context, entry audit.Entry)
}

// Guard combines a decision with the denial audit required for sensitive resources.
type Guard struct {
	pdp   *PDP
	trail AuditTrail
}

// NewGuard constructs a Guard.
func NewGuard(pdp *PDP, trail AuditTrail) *Guard {
	return &Guard{pdp: pdp, trail: trail}
}

// PDP exposes the underlying decision point.
func (g *Guard) PDP() *PDP {
	return g.pdp
}

// Authorize decides req. A denial on a sensitive resource is recorded under
// action before the error is returned.
func (g *Guard) Authorize(ctx context.Context, req Request, action string) (Decision, error) {
	decision, err := g.pdp.Decide(ctx, req)
	if err == nil || decision.Reason == "" {
		return decision, err
	}
	if IsSensitive(req.Resource, req.Operation) {
		g.recordDenial(ctx, req, decision, action)
	}
	return decision, err
}

func (g *Guard) recordDenial(ctx context.Context, req Request, decision Decision, action string) {
	if g.trail == nil {
		return
	}
	meta := shared.RequestMetaFromContext(ctx)
	entry := audit.Entry{
		Action:       action,
		ResourceType: string(req.Resource),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Details: map[string]any{
			"error":  audit.DeniedMessage,
			"reason": string(decision.Reason),
		},
	}
	if req.Principal.ID != 0 {
		entry.ActorID = audit.Ref(req.Principal.ID)
	}
	if req.ResourceID != 0 {
		entry.ResourceID = audit.Ref(req.ResourceID)
	}
	g.trail.Track(ctx, entry)
}

// IsSensitive reports whether denials of op on t must be audited.
func IsSensitive(t ownership.ResourceType, op Operation) bool {
	switch t {
	case ownership.Chantier:
		return op == OpView || op == OpUpdate || op == OpDelete
	case ownership.Invoice, ownership.Quote:
		return op == OpView
	case ownership.User:
		return op == OpUpdate || op == OpChangePrivileges || op == OpDelete
	default:
		return false
	}
}
