package audithttp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/platform/httpx"
	"github.com/batisseur/intranet/internal/rbac"
	"github.com/batisseur/intranet/internal/shared"
)

// ServiceTokenHeader carries the shared secret for unauthenticated ingest.
const ServiceTokenHeader = "X-Service-Token"

// QueryService is the read side of the audit trail.
type QueryService interface {
	Query(ctx context.Context, filter audit.Filter, page, limit int) (audit.Page, error)
	Get(ctx context.Context, id int64) (audit.Record, error)
}

// Recorder is the write side used by the ingest endpoint.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (audit.Record, error)
	RecordBootstrap(ctx context.Context, entry audit.Entry) (audit.Record, error)
}

// Handler serves audit log queries and ingestion.
type Handler struct {
	logger      *slog.Logger
	service     QueryService
	recorder    Recorder
	pdp         *rbac.PDP
	ingestToken string
}

// NewHandler builds the audit log handler. An empty ingestToken disables the
// service-token requirement for unauthenticated bootstrap events.
func NewHandler(logger *slog.Logger, service QueryService, recorder Recorder, pdp *rbac.PDP, ingestToken string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		recorder:    recorder,
		pdp:         pdp,
		ingestToken: ingestToken,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.respondError(w, "authorize audit query", err)
		return
	}
	filter, page, limit, err := parseQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Query(r.Context(), filter, page, limit)
	if err != nil {
		h.respondError(w, "query audit logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		h.respondError(w, "authorize audit query", err)
		return
	}
	id, err := shared.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get audit log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

type ingestRequest struct {
	EventID      string         `json:"event_id" validate:"omitempty,uuid"`
	Action       string         `json:"action" validate:"required,max=64"`
	ResourceType string         `json:"resource_type" validate:"required"`
	ResourceID   *int64         `json:"resource_id" validate:"omitempty,gt=0"`
	Details      map[string]any `json:"details"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resourceType, err := ownership.ParseResourceType(req.ResourceType)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	meta := shared.RequestMetaOf(r)
	entry := audit.Entry{
		Action:       req.Action,
		ResourceType: string(resourceType),
		ResourceID:   req.ResourceID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Details:      req.Details,
	}
	var eventID uuid.UUID
	if req.EventID != "" {
		if eventID, err = uuid.Parse(req.EventID); err != nil {
			httpx.RespondError(w, validationError("event_id", err))
			return
		}
	}

	var rec audit.Record
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		if !audit.IsReportableAction(entry.Action) {
			if _, err := h.pdp.RequireRole(principal, auth.RoleAdmin); err != nil {
				h.respondError(w, "authorize audit ingest", err)
				return
			}
		}
		entry.ActorID = audit.Ref(principal.ID)
		rec, err = h.recorder.Record(r.Context(), entry)
	} else {
		if !h.serviceTokenValid(r) {
			httpx.RespondError(w, shared.Unauthenticated(errors.New("audit: service token required")))
			return
		}
		// Caller-chosen event ids are honoured only for token-holding services.
		if h.ingestToken != "" {
			entry.EventID = eventID
		}
		rec, err = h.recorder.RecordBootstrap(r.Context(), entry)
		if errors.Is(err, audit.ErrNotBootstrapAction) {
			httpx.RespondError(w, shared.Unauthenticated(err))
			return
		}
	}
	if err != nil {
		h.respondError(w, "ingest audit log", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) requireAdmin(r *http.Request) (auth.Principal, error) {
	principal, err := rbac.CurrentPrincipal(r)
	if err != nil {
		return auth.Principal{}, err
	}
	return h.pdp.RequireRole(principal, auth.RoleAdmin)
}

func (h *Handler) serviceTokenValid(r *http.Request) bool {
	if h.ingestToken == "" {
		return true
	}
	presented := r.Header.Get(ServiceTokenHeader)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.ingestToken)) == 1
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var authErr *shared.AuthError
	if !errors.As(err, &authErr) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseQuery(r *http.Request) (audit.Filter, int, int, error) {
	q := r.URL.Query()
	var filter audit.Filter

	if v := strings.TrimSpace(q.Get("id")); v != "" {
		id, err := shared.ParseID(v)
		if err != nil {
			return audit.Filter{}, 0, 0, err
		}
		filter.ID = id
	}
	if v := strings.TrimSpace(q.Get("actor_id")); v != "" {
		id, err := shared.ParseID(v)
		if err != nil {
			return audit.Filter{}, 0, 0, err
		}
		filter.ActorID = audit.Ref(id)
	}
	filter.Action = strings.TrimSpace(q.Get("action"))
	filter.ResourceType = strings.TrimSpace(q.Get("resource_type"))

	var err error
	if filter.From, err = parseTime(q.Get("from"), false); err != nil {
		return audit.Filter{}, 0, 0, validationError("from", err)
	}
	if filter.To, err = parseTime(q.Get("to"), true); err != nil {
		return audit.Filter{}, 0, 0, validationError("to", err)
	}

	page, err := parseInt(q.Get("page"))
	if err != nil {
		return audit.Filter{}, 0, 0, validationError("page", err)
	}
	limit, err := parseInt(q.Get("limit"))
	if err != nil {
		return audit.Filter{}, 0, 0, validationError("limit", err)
	}
	return filter, page, limit, nil
}

// parseTime accepts RFC3339 timestamps or plain dates. A plain date used as an
// upper bound covers the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func validationError(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", shared.ErrValidation, field, err)
}
