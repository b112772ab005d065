package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/platform/httpx"
	"github.com/batisseur/intranet/internal/rbac"
	"github.com/batisseur/intranet/internal/shared"
)

type stubQueryService struct {
	mu         sync.Mutex
	calls      int
	lastFilter audit.Filter
	lastPage   int
	lastLimit  int
	records    map[int64]audit.Record
}

func (s *stubQueryService) Query(_ context.Context, filter audit.Filter, page, limit int) (audit.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastFilter, s.lastPage, s.lastLimit = filter, page, limit
	return audit.Page{Records: []audit.Record{}, Page: 1, Limit: 20}, nil
}

func (s *stubQueryService) Get(_ context.Context, id int64) (audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	rec, ok := s.records[id]
	if !ok {
		return audit.Record{}, shared.ErrNotFound
	}
	return rec, nil
}

type sliceWriter struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (w *sliceWriter) Insert(_ context.Context, entry audit.Entry) (audit.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
	return audit.Record{
		ID:           int64(len(w.entries)),
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Details:      entry.Details,
		CreatedAt:    entry.OccurredAt,
	}, nil
}

type tokenIdentity map[string]auth.Principal

func (t tokenIdentity) Resolve(_ context.Context, credential string) (auth.Principal, error) {
	p, ok := t[credential]
	if !ok {
		return auth.Principal{}, shared.Unauthenticated(nil)
	}
	return p, nil
}

type noOwners struct{}

func (noOwners) LookupResourceOwner(context.Context, ownership.ResourceType, int64) (*int64, error) {
	return nil, shared.ErrNotFound
}

type fixture struct {
	router  http.Handler
	service *stubQueryService
	writer  *sliceWriter
}

func newFixture(t *testing.T, ingestToken string) fixture {
	t.Helper()
	identity := tokenIdentity{
		"admin":  {ID: 1, Role: auth.RoleAdmin, Status: auth.StatusActive},
		"worker": {ID: 2, Role: auth.RoleTravailleur, Status: auth.StatusActive},
	}
	pdp := rbac.NewPDP(identity, ownership.NewResolver(noOwners{}))
	service := &stubQueryService{records: map[int64]audit.Record{
		9: {ID: 9, Action: audit.ActionDeleteUser, ResourceType: "user", CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
	}}
	writer := &sliceWriter{}
	handler := NewHandler(nil, service, audit.NewRecorder(writer, nil), pdp, ingestToken)
	r := chi.NewRouter()
	r.Use(shared.RequestMetaMiddleware)
	handler.MountRoutes(r)
	return fixture{router: r, service: service, writer: writer}
}

func (f fixture) do(method, target, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func problemCode(t *testing.T, rr *httptest.ResponseRecorder) shared.Code {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	return problem.Code
}

func TestQueryRequiresAdmin(t *testing.T) {
	f := newFixture(t, "")

	rr := f.do(http.MethodGet, "/audit/logs", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodGet, "/audit/logs", "worker", "", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, shared.CodeForbidden, problemCode(t, rr))

	rr = f.do(http.MethodGet, "/audit/logs/9", "worker", "", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	require.Zero(t, f.service.calls, "service must not be reached before the admin check")
}

func TestQueryParsesFilters(t *testing.T) {
	f := newFixture(t, "")

	rr := f.do(http.MethodGet, "/audit/logs?actor_id=6&action=view_chantier&resource_type=chantier&from=2024-05-01&to=2024-05-02&page=3&limit=200", "admin", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	filter := f.service.lastFilter
	require.Equal(t, int64(6), *filter.ActorID)
	require.Equal(t, "view_chantier", filter.Action)
	require.Equal(t, "chantier", filter.ResourceType)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), filter.From)
	require.Equal(t, time.Date(2024, 5, 2, 23, 59, 59, 999999999, time.UTC), filter.To)
	require.Equal(t, 3, f.service.lastPage)
	require.Equal(t, 200, f.service.lastLimit)
}

func TestQueryRejectsBadParameters(t *testing.T) {
	f := newFixture(t, "")

	cases := map[string]shared.Code{
		"/audit/logs?actor_id=abc": shared.CodeInvalidID,
		"/audit/logs?id=-4":        shared.CodeInvalidID,
		"/audit/logs?from=monday":  shared.CodeValidationFailed,
		"/audit/logs?limit=ten":    shared.CodeValidationFailed,
		"/audit/logs/xyz":          shared.CodeInvalidID,
	}
	for target, code := range cases {
		rr := f.do(http.MethodGet, target, "admin", "", nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
		require.Equal(t, code, problemCode(t, rr), target)
	}
}

func TestGetByID(t *testing.T) {
	f := newFixture(t, "")

	rr := f.do(http.MethodGet, "/audit/logs/9", "admin", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rec audit.Record
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))
	require.Equal(t, audit.ActionDeleteUser, rec.Action)

	rr = f.do(http.MethodGet, "/audit/logs/10", "admin", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, shared.CodeNotFound, problemCode(t, rr))
}

func TestIngestAuthenticatedRecordsAsCaller(t *testing.T) {
	f := newFixture(t, "")

	rr := f.do(http.MethodPost, "/audit/logs", "worker",
		`{"action":"view_chantier","resource_type":"chantier","resource_id":12,"details":{"source":"tablet"}}`,
		map[string]string{"X-Forwarded-For": "192.0.2.10", "User-Agent": "site-tablet"})
	require.Equal(t, http.StatusCreated, rr.Code)

	require.Len(t, f.writer.entries, 1)
	entry := f.writer.entries[0]
	require.Equal(t, int64(2), *entry.ActorID)
	require.Equal(t, audit.ActionViewChantier, entry.Action)
	require.Equal(t, "192.0.2.10", entry.IPAddress)
	require.Equal(t, "site-tablet", entry.UserAgent)
}

func TestIngestUnauthenticatedBootstrapOnly(t *testing.T) {
	f := newFixture(t, "")

	rr := f.do(http.MethodPost, "/audit/logs", "", `{"action":"LOGIN_FAILED","resource_type":"user","details":{"email":"x@batisseur.test"}}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(http.MethodPost, "/audit/logs", "", `{"action":"DELETE_USER","resource_type":"user","resource_id":3}`, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, shared.CodeUnauthenticated, problemCode(t, rr))

	require.Len(t, f.writer.entries, 1)
	require.Nil(t, f.writer.entries[0].ActorID)
	require.Equal(t, audit.ActionLoginFailed, f.writer.entries[0].Action)
}

func TestIngestServiceToken(t *testing.T) {
	f := newFixture(t, "s3cret")
	body := `{"action":"LOGIN_FAILED","resource_type":"user"}`

	rr := f.do(http.MethodPost, "/audit/logs", "", body, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/audit/logs", "", body, map[string]string{ServiceTokenHeader: "wrong"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/audit/logs", "", body, map[string]string{ServiceTokenHeader: "s3cret"})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, f.writer.entries, 1)
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t, "")

	for _, body := range []string{
		`{"resource_type":"user"}`,
		`{"action":"LOGIN","resource_type":"payroll"}`,
		`{"action":"LOGIN","resource_type":"user","event_id":"nope"}`,
		`{"action":"LOGIN","resource_type":"user","resource_id":0}`,
	} {
		rr := f.do(http.MethodPost, "/audit/logs", "worker", body, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.Equal(t, shared.CodeValidationFailed, problemCode(t, rr), body)
	}
	require.Empty(t, f.writer.entries)
}

func TestIngestNonReportableActionRequiresAdmin(t *testing.T) {
	f := newFixture(t, "")
	body := `{"action":"DELETE_USER","resource_type":"user","resource_id":1}`

	rr := f.do(http.MethodPost, "/audit/logs", "worker", body, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, shared.CodeForbidden, problemCode(t, rr))
	require.Empty(t, f.writer.entries)

	rr = f.do(http.MethodPost, "/audit/logs", "admin", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, f.writer.entries, 1)
	require.Equal(t, int64(1), *f.writer.entries[0].ActorID)
	require.Equal(t, audit.ActionDeleteUser, f.writer.entries[0].Action)
}

func TestIngestEventIDHonouredOnlyForServices(t *testing.T) {
	const eventID = "0b7e4a8c-2f3d-4c1e-9a6b-5d8f1e2c3b4a"
	f := newFixture(t, "s3cret")

	rr := f.do(http.MethodPost, "/audit/logs", "worker",
		`{"event_id":"`+eventID+`","action":"VIEW_CHANTIER","resource_type":"chantier","resource_id":4}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(http.MethodPost, "/audit/logs", "",
		`{"event_id":"`+eventID+`","action":"LOGIN_FAILED","resource_type":"user"}`,
		map[string]string{ServiceTokenHeader: "s3cret"})
	require.Equal(t, http.StatusCreated, rr.Code)

	require.Len(t, f.writer.entries, 2)
	require.NotEqual(t, eventID, f.writer.entries[0].EventID.String())
	require.Equal(t, eventID, f.writer.entries[1].EventID.String())
}
