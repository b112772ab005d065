package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/batisseur/intranet/internal/audit"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/platform/httpx"
	"github.com/batisseur/intranet/internal/shared"
)

type stubRepo struct {
	principalStub
	users map[string]*auth.User
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

type fakeTrail struct {
	mu        sync.Mutex
	tracked   []audit.Entry
	bootstrap []audit.Entry
}

func (f *fakeTrail) Track(_ context.Context, entry audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, entry)
}

func (f *fakeTrail) RecordBootstrap(_ context.Context, entry audit.Entry) (audit.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ActorID != nil || !audit.IsBootstrapAction(entry.Action) {
		return audit.Record{}, audit.ErrNotBootstrapAction
	}
	f.bootstrap = append(f.bootstrap, entry)
	return audit.Record{ID: int64(len(f.bootstrap)), Action: entry.Action}, nil
}

func newUser(t *testing.T, id int64, email string, role auth.Role, status auth.Status) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{
		Principal:    auth.Principal{ID: id, Email: email, Name: email, Role: role, Status: status},
		PasswordHash: string(hashed),
	}
}

func newAuthRouter(t *testing.T) (http.Handler, *fakeTrail) {
	t.Helper()
	active := newUser(t, 1, "chef@batisseur.test", auth.RoleTravailleur, auth.StatusActive)
	inactive := newUser(t, 2, "ancien@batisseur.test", auth.RoleClient, auth.StatusInactive)
	repo := &stubRepo{
		principalStub: principalStub{1: active.Principal, 2: inactive.Principal},
		users:         map[string]*auth.User{active.Email: active, inactive.Email: inactive},
	}
	tokens, _ := newTokenStore(t)
	trail := &fakeTrail{}
	handler := auth.NewHandler(nil, auth.NewService(repo, tokens), auth.NewResolver(tokens, repo), trail, false)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r, trail
}

func postLogin(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "chantier-app/1.0")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	return problem
}

func TestLoginSuccessIssuesTokenAndRecordsLogin(t *testing.T) {
	router, trail := newAuthRouter(t)

	rr := postLogin(router, `{"email":"Chef@Batisseur.test","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var session auth.Session
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&session))
	require.NotEmpty(t, session.Token)
	require.Equal(t, int64(1), session.Principal.ID)
	require.Contains(t, rr.Header().Get("Set-Cookie"), auth.CookieName+"="+session.Token)

	require.Len(t, trail.tracked, 1)
	entry := trail.tracked[0]
	require.Equal(t, audit.ActionLogin, entry.Action)
	require.Equal(t, int64(1), *entry.ActorID)
	require.Equal(t, "203.0.113.9", entry.IPAddress)
	require.Equal(t, "chantier-app/1.0", entry.UserAgent)
	require.Empty(t, trail.bootstrap)
}

func TestLoginWrongPasswordRecordsBootstrapFailure(t *testing.T) {
	router, trail := newAuthRouter(t)

	for _, body := range []string{
		`{"email":"chef@batisseur.test","password":"wrong-horse"}`,
		`{"email":"nobody@batisseur.test","password":"correct-horse"}`,
	} {
		rr := postLogin(router, body)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Equal(t, shared.CodeUnauthenticated, decodeProblem(t, rr).Code)
	}

	require.Empty(t, trail.tracked)
	require.Len(t, trail.bootstrap, 2)
	for _, entry := range trail.bootstrap {
		require.Equal(t, audit.ActionLoginFailed, entry.Action)
		require.Nil(t, entry.ActorID)
	}
}

func TestLoginInactiveAccountReturnsAccountDisabled(t *testing.T) {
	router, trail := newAuthRouter(t)

	rr := postLogin(router, `{"email":"ancien@batisseur.test","password":"correct-horse"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, shared.CodeAccountDisabled, decodeProblem(t, rr).Code)
	require.Empty(t, rr.Header().Get("Set-Cookie"))

	require.Len(t, trail.bootstrap, 1)
	entry := trail.bootstrap[0]
	require.Nil(t, entry.ActorID)
	require.Equal(t, int64(2), entry.Details["user_id"])
	require.Equal(t, "account-disabled", entry.Details["reason"])
}

func TestLoginValidation(t *testing.T) {
	router, trail := newAuthRouter(t)

	for _, body := range []string{
		`{"email":"not-an-email","password":"correct-horse"}`,
		`{"email":"chef@batisseur.test"}`,
		`{"email":"chef@batisseur.test","password":"correct-horse","remember":true}`,
		`not json`,
	} {
		rr := postLogin(router, body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.Equal(t, shared.CodeValidationFailed, decodeProblem(t, rr).Code)
	}
	require.Empty(t, trail.bootstrap)
	require.Empty(t, trail.tracked)
}

func TestMeAndLogout(t *testing.T) {
	router, trail := newAuthRouter(t)

	rr := postLogin(router, `{"email":"chef@batisseur.test","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var session auth.Session
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&session))

	call := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		return res
	}

	me := call(http.MethodGet, "/auth/me")
	require.Equal(t, http.StatusOK, me.Code)
	var principal auth.Principal
	require.NoError(t, json.NewDecoder(me.Body).Decode(&principal))
	require.Equal(t, auth.RoleTravailleur, principal.Role)

	require.Equal(t, http.StatusNoContent, call(http.MethodPost, "/auth/logout").Code)
	require.Equal(t, audit.ActionLogout, trail.tracked[len(trail.tracked)-1].Action)

	after := call(http.MethodGet, "/auth/me")
	require.Equal(t, http.StatusUnauthorized, after.Code)
	require.Equal(t, shared.CodeUnauthenticated, decodeProblem(t, after).Code)
}
