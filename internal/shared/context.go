package shared

import (
	"context"
	"net/http"
	"strings"
)

const unknownValue = "unknown"

// RequestMeta carries the caller attributes recorded alongside audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaContextKey struct{}

// RequestMetaFrom derives request metadata from forwarding headers.
func RequestMetaFrom(r *http.Request) RequestMeta {
	return RequestMeta{IPAddress: ClientIP(r), UserAgent: UserAgent(r)}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then "unknown".
func ClientIP(r *http.Request) string {
	if r == nil {
		return unknownValue
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return unknownValue
}

// UserAgent returns the request user agent or "unknown".
func UserAgent(r *http.Request) string {
	if r == nil {
		return unknownValue
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		return ua
	}
	return unknownValue
}

// ContextWithRequestMeta stores request metadata in context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// RequestMetaFromContext extracts request metadata, defaulting to "unknown" values.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if meta, ok := ctx.Value(requestMetaContextKey{}).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{IPAddress: unknownValue, UserAgent: unknownValue}
}

// RequestMetaMiddleware captures request metadata before any proxy header rewriting.
func RequestMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ContextWithRequestMeta(r.Context(), RequestMetaFrom(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestMetaOf returns the metadata captured by RequestMetaMiddleware, or
// derives it from r when the middleware did not run.
func RequestMetaOf(r *http.Request) RequestMeta {
	if meta, ok := r.Context().Value(requestMetaContextKey{}).(RequestMeta); ok {
		return meta
	}
	return RequestMetaFrom(r)
}
