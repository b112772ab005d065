package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/batisseur/intranet/internal/shared"
)

// CookieName carries the token for browser clients.
const CookieName = "intranet_session"

// TokenLookup resolves a token to a principal id.
type TokenLookup interface {
	Lookup(ctx context.Context, token string) (int64, error)
}

// Resolver turns an opaque credential into a Principal.
type Resolver struct {
	tokens     TokenLookup
	principals PrincipalStore
}

// NewResolver constructs a Resolver.
func NewResolver(tokens TokenLookup, principals PrincipalStore) *Resolver {
	return &Resolver{tokens: tokens, principals: principals}
}

// Resolve returns the principal bound to credential. Missing, malformed and
// expired credentials yield Unauthenticated; inactive accounts AccountDisabled.
func (r *Resolver) Resolve(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, shared.Unauthenticated(nil)
	}
	id, err := r.tokens.Lookup(ctx, credential)
	if err != nil {
		if errors.Is(err, ErrMalformedToken) || errors.Is(err, ErrTokenExpired) {
			return Principal{}, shared.Unauthenticated(err)
		}
		return Principal{}, shared.Persistence("auth: resolve token", err)
	}
	p, err := r.principals.LookupPrincipal(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Principal{}, shared.Unauthenticated(err)
		}
		return Principal{}, err
	}
	if !p.IsActive() {
		return Principal{}, shared.AccountDisabled()
	}
	return p, nil
}

// CredentialFromRequest extracts the bearer token, falling back to the session cookie.
func CredentialFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal resolved by the authentication middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
