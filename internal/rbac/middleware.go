package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/platform/httpx"
	"github.com/batisseur/intranet/internal/shared"
)

// Middleware wires PDP checks into chi route groups.
type Middleware struct {
	PDP    *PDP
	Logger *slog.Logger
}

// Authenticate resolves the request credential and stores the principal in
// context. Requests without a valid active principal are rejected.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.PDP.RequireAuthenticated(r.Context(), auth.CredentialFromRequest(r))
		if err != nil {
			m.fail(w, "rbac authenticate", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// OptionalAuthenticate behaves like Authenticate when a credential is
// presented and lets anonymous requests through otherwise.
func (m Middleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := auth.CredentialFromRequest(r)
		if credential == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.PDP.RequireAuthenticated(r.Context(), credential)
		if err != nil {
			m.fail(w, "rbac optional authenticate", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireRole ensures the authenticated principal holds one of roles.
func (m Middleware) RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := CurrentPrincipal(r)
			if err == nil {
				_, err = m.PDP.RequireRole(principal, roles...)
			}
			if err != nil {
				m.fail(w, "rbac require role", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission ensures the authenticated principal's role grants family.
func (m Middleware) RequirePermission(family ActionFamily) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := CurrentPrincipal(r)
			if err == nil {
				_, err = m.PDP.RequirePermission(principal, family)
			}
			if err != nil {
				m.fail(w, "rbac require permission", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CurrentPrincipal returns the principal stored by Authenticate.
func CurrentPrincipal(r *http.Request) (auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, shared.Unauthenticated(nil)
	}
	return principal, nil
}

func (m Middleware) fail(w http.ResponseWriter, op string, err error) {
	var authErr *shared.AuthError
	if !errors.As(err, &authErr) && m.Logger != nil {
		m.Logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
