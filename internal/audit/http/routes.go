package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/rbac"
)

const ingestRateLimit = 60
const ingestRateWindow = time.Minute

// MountRoutes registers the audit log query and ingest endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	mw := rbac.Middleware{PDP: h.pdp, Logger: h.logger}
	limiter := httprate.Limit(ingestRateLimit, ingestRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(mw.Authenticate)
		gr.Get("/audit/logs", h.handleList)
		gr.Get("/audit/logs/{id}", h.handleGet)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(mw.OptionalAuthenticate, limiter)
		gr.Post("/audit/logs", h.handleIngest)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(principal.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
