package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/platform/httpx"
	"github.com/batisseur/intranet/internal/shared"
)

const resourceUser = "user"

// AuditTrail is the slice of the audit recorder used by authentication flows.
type AuditTrail interface {
	Track(ctx context.Context, entry audit.Entry)
	RecordBootstrap(ctx context.Context, entry audit.Entry) (audit.Record, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	resolver     *Resolver
	trail        AuditTrail
	secureCookie bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, trail AuditTrail, secureCookie bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:       logger,
		service:      service,
		resolver:     resolver,
		trail:        trail,
		secureCookie: secureCookie,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	meta := shared.RequestMetaOf(r)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	session, err := h.service.Login(r.Context(), email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrInvalidCredentials):
		h.recordLoginFailed(r.Context(), meta, map[string]any{"email": email, "reason": "invalid-credentials"})
		httpx.RespondError(w, shared.Unauthenticated(err))
		return
	case errors.Is(err, shared.ErrAccountDisabled):
		h.recordLoginFailed(r.Context(), meta, map[string]any{
			"email":   email,
			"reason":  string(shared.ReasonAccountDisabled),
			"user_id": session.Principal.ID,
		})
		httpx.RespondError(w, err)
		return
	default:
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.trail.Track(r.Context(), audit.Entry{
		ActorID:      audit.Ref(session.Principal.ID),
		Action:       audit.ActionLogin,
		ResourceType: resourceUser,
		ResourceID:   audit.Ref(session.Principal.ID),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) recordLoginFailed(ctx context.Context, meta shared.RequestMeta, details map[string]any) {
	_, err := h.trail.RecordBootstrap(ctx, audit.Entry{
		Action:       audit.ActionLoginFailed,
		ResourceType: resourceUser,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Details:      details,
	})
	if err != nil {
		h.logger.Error("record failed login", slog.Any("error", err))
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	credential := CredentialFromRequest(r)
	principal, err := h.resolver.Resolve(r.Context(), credential)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Logout(r.Context(), credential); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	meta := shared.RequestMetaOf(r)
	h.trail.Track(r.Context(), audit.Entry{
		ActorID:      audit.Ref(principal.ID),
		Action:       audit.ActionLogout,
		ResourceType: resourceUser,
		ResourceID:   audit.Ref(principal.ID),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := h.resolver.Resolve(r.Context(), CredentialFromRequest(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}
