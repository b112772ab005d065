package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/batisseur/intranet/internal/platform/httpx"
	"github.com/batisseur/intranet/internal/rbac"
	"github.com/batisseur/intranet/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticate)
		r.Use(h.rbac.RequirePermission(rbac.ManageStock))
		r.Get("/items", h.listItems)
		r.Post("/movements", h.postMovement)
	})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	actor, err := rbac.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := h.service.ListItems(r.Context(), actor, page, limit)
	if err != nil {
		h.fail(w, "list stock items failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	actor, err := rbac.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in MovementInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.PostMovement(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "post stock movement failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, shared.ErrPersistence) {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
