package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/platform/httpx"
	"github.com/batisseur/intranet/internal/rbac"
	"github.com/batisseur/intranet/internal/shared"
)

type memoryStore struct {
	mu      sync.Mutex
	users   map[int64]auth.Principal
	entries []audit.Entry
	failTx  error
}

func (m *memoryStore) ListUsers(_ context.Context, limit, offset int) ([]auth.Principal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.Principal, 0, len(m.users))
	for id := int64(1); id <= 10; id++ {
		if p, ok := m.users[id]; ok {
			out = append(out, p)
		}
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memoryStore) UpdateWithAudit(_ context.Context, id int64, patch Patch, entry audit.Entry) (auth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTx != nil {
		return auth.Principal{}, m.failTx
	}
	current, ok := m.users[id]
	if !ok {
		return auth.Principal{}, shared.ErrNotFound
	}
	next := patch.Apply(current)
	m.users[id] = next
	m.entries = append(m.entries, entry)
	return next, nil
}

func (m *memoryStore) DeleteWithAudit(_ context.Context, id int64, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTx != nil {
		return m.failTx
	}
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	m.entries = append(m.entries, entry)
	return nil
}

type denialTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (d *denialTrail) Track(_ context.Context, entry audit.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
}

type tokens map[string]int64

type identity struct {
	tokens tokens
	store  *memoryStore
}

func (i identity) Resolve(_ context.Context, credential string) (auth.Principal, error) {
	id, ok := i.tokens[credential]
	if !ok {
		return auth.Principal{}, shared.Unauthenticated(nil)
	}
	i.store.mu.Lock()
	defer i.store.mu.Unlock()
	p, ok := i.store.users[id]
	if !ok {
		return auth.Principal{}, shared.Unauthenticated(nil)
	}
	if !p.IsActive() {
		return auth.Principal{}, shared.AccountDisabled()
	}
	return p, nil
}

type noOwners struct{}

func (noOwners) LookupResourceOwner(context.Context, ownership.ResourceType, int64) (*int64, error) {
	return nil, shared.ErrNotFound
}

var (
	admin  = auth.Principal{ID: 1, Email: "admin@batisseur.test", Name: "Admin", Role: auth.RoleAdmin, Status: auth.StatusActive}
	worker = auth.Principal{ID: 2, Email: "chef@batisseur.test", Name: "Chef", Role: auth.RoleTravailleur, Status: auth.StatusActive}
	client = auth.Principal{ID: 5, Email: "client@batisseur.test", Name: "Client", Role: auth.RoleClient, Status: auth.StatusActive}
)

type fixture struct {
	store   *memoryStore
	trail   *denialTrail
	service *Service
	pdp     *rbac.PDP
}

func newFixture() fixture {
	store := &memoryStore{users: map[int64]auth.Principal{1: admin, 2: worker, 5: client}}
	trail := &denialTrail{}
	pdp := rbac.NewPDP(identity{
		tokens: tokens{"admin": 1, "worker": 2, "client": 5},
		store:  store,
	}, ownership.NewResolver(noOwners{}))
	guard := rbac.NewGuard(pdp, trail)
	return fixture{
		store:   store,
		trail:   trail,
		service: NewService(store, guard, audit.NewRecorder(nil, nil)),
		pdp:     pdp,
	}
}

func strPtr(s string) *string { return &s }

func TestAdminChangesPrivilegesInOneWrite(t *testing.T) {
	f := newFixture()
	ctx := shared.ContextWithRequestMeta(context.Background(), shared.RequestMeta{IPAddress: "10.1.1.1", UserAgent: "console"})

	updated, err := f.service.UpdateUser(ctx, admin, worker.ID, Patch{Role: strPtr("admin")})
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, updated.Role)

	require.Len(t, f.store.entries, 1)
	entry := f.store.entries[0]
	require.NotEqual(t, uuid.Nil, entry.EventID)
	require.Equal(t, audit.ActionUpdateUserPrivileges, entry.Action)
	require.Equal(t, admin.ID, *entry.ActorID)
	require.Equal(t, worker.ID, *entry.ResourceID)
	require.Equal(t, "user", entry.ResourceType)
	require.Equal(t, "admin", entry.Details["role"])
	require.Equal(t, "10.1.1.1", entry.IPAddress)
	require.Empty(t, f.trail.entries)
}

func TestSelfServiceProfileUpdate(t *testing.T) {
	f := newFixture()

	updated, err := f.service.UpdateUser(context.Background(), client, client.ID, Patch{Name: strPtr("Client Renamed")})
	require.NoError(t, err)
	require.Equal(t, "Client Renamed", updated.Name)
	require.Len(t, f.store.entries, 1)
	require.Equal(t, audit.ActionUpdateUser, f.store.entries[0].Action)
}

func TestNonAdminCannotChangeOwnRole(t *testing.T) {
	f := newFixture()

	require.True(t, f.pdp.CanModifyUser(worker, worker.ID))
	_, err := f.service.UpdateUser(context.Background(), worker, worker.ID, Patch{Role: strPtr("admin")})
	require.ErrorIs(t, err, shared.Forbidden(shared.ReasonSelfProtection))
	require.Equal(t, auth.RoleTravailleur, f.store.users[worker.ID].Role)
	require.Empty(t, f.store.entries)

	require.Len(t, f.trail.entries, 1)
	denial := f.trail.entries[0]
	require.Equal(t, audit.ActionUpdateUserPrivileges, denial.Action)
	require.Equal(t, audit.DeniedMessage, denial.Details["error"])
	require.Equal(t, "self-protection", denial.Details["reason"])
}

func TestNonAdminCannotEditOthers(t *testing.T) {
	f := newFixture()

	_, err := f.service.UpdateUser(context.Background(), client, worker.ID, Patch{Name: strPtr("x")})
	require.ErrorIs(t, err, shared.Forbidden(shared.ReasonRoleDenied))
	require.Len(t, f.trail.entries, 1)
	require.Equal(t, client.ID, *f.trail.entries[0].ActorID)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture()

	err := f.service.DeleteUser(context.Background(), admin, admin.ID)
	require.ErrorIs(t, err, shared.Forbidden(shared.ReasonSelfProtection))
	require.Contains(t, f.store.users, admin.ID)

	require.NoError(t, f.service.DeleteUser(context.Background(), admin, client.ID))
	require.NotContains(t, f.store.users, client.ID)
	require.Len(t, f.store.entries, 1)
	require.Equal(t, audit.ActionDeleteUser, f.store.entries[0].Action)

	err = f.service.DeleteUser(context.Background(), admin, client.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFailedTransactionLeavesNoAudit(t *testing.T) {
	f := newFixture()
	f.store.failTx = shared.Persistence("users: audit update", errors.New("disk full"))

	_, err := f.service.UpdateUser(context.Background(), admin, worker.ID, Patch{Status: strPtr("inactive")})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Empty(t, f.store.entries)
	require.Equal(t, auth.StatusActive, f.store.users[worker.ID].Status)
}

func TestEmptyPatchRejected(t *testing.T) {
	f := newFixture()
	_, err := f.service.UpdateUser(context.Background(), admin, worker.ID, Patch{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListUsersRequiresManageUsers(t *testing.T) {
	f := newFixture()

	_, err := f.service.ListUsers(context.Background(), worker, 1, 20)
	require.ErrorIs(t, err, shared.Forbidden(shared.ReasonRoleDenied))

	result, err := f.service.ListUsers(context.Background(), admin, 1, 2)
	require.NoError(t, err)
	require.Len(t, result.Users, 2)
	require.Equal(t, 3, result.Pagination.Total)
	require.Equal(t, 2, result.Pagination.TotalPages)
}

func newRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/users", NewHandler(nil, f.service, rbac.Middleware{PDP: f.pdp}).MountRoutes)
	return r
}

func call(router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerBoundary(t *testing.T) {
	f := newFixture()
	router := newRouter(f)

	cases := []struct {
		name   string
		method string
		target string
		token  string
		body   string
		status int
		code   shared.Code
	}{
		{"non numeric id", http.MethodPatch, "/users/abc", "admin", `{"name":"x"}`, http.StatusBadRequest, shared.CodeInvalidID},
		{"unknown role", http.MethodPatch, "/users/2", "admin", `{"role":"superuser"}`, http.StatusBadRequest, shared.CodeValidationFailed},
		{"unknown field", http.MethodPatch, "/users/2", "admin", `{"salary":1}`, http.StatusBadRequest, shared.CodeValidationFailed},
		{"own status", http.MethodPatch, "/users/5", "client", `{"status":"active"}`, http.StatusForbidden, shared.CodeForbidden},
		{"delete self", http.MethodDelete, "/users/1", "admin", ``, http.StatusForbidden, shared.CodeForbidden},
		{"anonymous", http.MethodGet, "/users/", "", ``, http.StatusUnauthorized, shared.CodeUnauthenticated},
		{"missing user", http.MethodDelete, "/users/9", "admin", ``, http.StatusNotFound, shared.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := call(router, tc.method, tc.target, tc.token, tc.body)
			require.Equal(t, tc.status, rr.Code)
			var problem httpx.ProblemDetail
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
			require.Equal(t, tc.code, problem.Code)
		})
	}

	rr := call(router, http.MethodPatch, "/users/2", "admin", `{"status":"inactive"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var updated auth.Principal
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&updated))
	require.Equal(t, auth.StatusInactive, updated.Status)

	rr = call(router, http.MethodGet, "/users/", "worker", ``)
	require.Equal(t, http.StatusForbidden, rr.Code, "deactivated accounts lose access immediately")
	require.Contains(t, rr.Body.String(), string(shared.CodeAccountDisabled))
}
