package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/workbenchhq/workbench-agent/internal/audit"
	"github.com/workbenchhq/workbench-agent/internal/auth"
	"github.com/workbenchhq/workbench-agent/internal/backend"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/database"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/logging"
	"github.com/workbenchhq/workbench-agent/internal/profile"
	"github.com/workbenchhq/workbench-agent/internal/session"
	_ "github.com/workbenchhq/workbench-agent/migrations"
)

// fakeHostedBackend is a minimal stand-in for the hosted auth and row
// endpoints.
type fakeHostedBackend struct {
	password string
	profiles map[string]map[string]any
}

func (f *fakeHostedBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/v1/token", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		if body.Password != f.password {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error_description": "Invalid login credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "access-token",
			"refresh_token": "refresh-token",
			"expires_at": ` + strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10) + `,
			"user": {"id": "user-1", "email": "` + body.Email + `", "user_metadata": {"name": "Pat"}}
		}`))
	})
	r.Post("/auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/auth/v1/signup", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"msg": "User already registered"}`))
	})
	r.Get("/rest/v1/user_profiles", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		id := req.URL.Query().Get("id")
		for userID, row := range f.profiles {
			if id == "eq."+userID {
				out, _ := json.Marshal([]map[string]any{row})
				w.Write(out)
				return
			}
		}
		w.Write([]byte(`[]`))
	})
	return r
}

type testHarness struct {
	server  *Server
	router  http.Handler
	manager *session.Manager
	hosted  *fakeHostedBackend
	audit   *audit.SQLiteRepository
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	hosted := &fakeHostedBackend{
		password: "hunter2",
		profiles: map[string]map[string]any{
			"user-1": {"id": "user-1", "name": "Pat", "role": "manager"},
		},
	}
	hostedSrv := httptest.NewServer(hosted.router())
	t.Cleanup(hostedSrv.Close)

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api_test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	logger := logging.Default()
	client := backend.New(config.BackendConfig{
		URL:            hostedSrv.URL,
		APIKey:         "test-api-key",
		RequestTimeout: 5,
	}, logger.Logger)

	manager := session.NewManager()
	store := session.NewMemoryStore()
	sessionCfg := config.SessionConfig{
		ProfileCacheFresh:            300,
		ProfileCacheHard:             600,
		DefaultProfileExpirationDays: 365,
	}
	profiles := profile.NewService(client, db.DB, sessionCfg, logger.Logger)

	apiCfg := config.LocalAPIConfig{Host: "127.0.0.1", Port: 0}
	apiCfg.WebSocket.PingInterval = 30
	apiCfg.WebSocket.PongTimeout = 10
	apiCfg.WebSocket.MaxMessageSize = 65536

	auditRepo := audit.NewSQLiteRepository(db.DB)
	resolver := auth.NewResolver(func() (auth.Role, bool) {
		snap := manager.Current()
		if snap.User == nil {
			return "", false
		}
		p, err := profiles.Get(context.Background(), snap.Session.AccessToken, snap.User.ID)
		if err != nil {
			return "", false
		}
		return p.Role, true
	})

	hub := NewHub(apiCfg.WebSocket, logger)
	authSvc := session.NewService(client, store, manager, profiles, nil, hub, logger.Logger)

	srv, err := New(Deps{
		Config:      apiCfg,
		Logger:      logger,
		Manager:     manager,
		Auth:        authSvc,
		Profiles:    profiles,
		Resolver:    resolver,
		Audit:       auditRepo,
		DB:          db,
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return &testHarness{
		server:  srv,
		router:  srv.buildRouter(),
		manager: manager,
		hosted:  hosted,
		audit:   auditRepo,
	}
}

func (h *testHarness) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestLogin_Success(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var payload sessionPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !payload.SignedIn || payload.User == nil || payload.User.ID != "user-1" {
		t.Errorf("payload = %+v", payload)
	}

	result, err := h.audit.List(context.Background(), audit.Filter{Event: audit.EventSignIn})
	if err != nil || result.Total != 1 {
		t.Errorf("sign_in audit entries = %d (%v), want 1", result.Total, err)
	}
	if result.Entries[0].Outcome != audit.OutcomeSuccess {
		t.Errorf("audit outcome = %q", result.Entries[0].Outcome)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if h.manager.Current().SignedIn() {
		t.Error("failed login should leave the manager signed out")
	}
}

func TestLogin_NoProfileIsForbidden(t *testing.T) {
	h := newTestHarness(t)
	delete(h.hosted.profiles, "user-1")

	rec := h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if h.manager.Current().SignedIn() {
		t.Error("login without profile should unwind to signed out")
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	h := newTestHarness(t)
	h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})

	rec := h.request(t, http.MethodPost, "/v1/auth/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if h.manager.Current().SignedIn() {
		t.Error("logout should clear the session")
	}
}

func TestSignup_DuplicateIsConflict(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPost, "/v1/auth/signup",
		map[string]string{"email": "user@example.com", "password": "hunter2", "name": "Pat"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestUpdateUser_SameEmail(t *testing.T) {
	h := newTestHarness(t)
	h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})

	rec := h.request(t, http.MethodPatch, "/v1/auth/user",
		map[string]string{"email": "user@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateUser_NotSignedIn(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPatch, "/v1/auth/user",
		map[string]string{"password": "new-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetSession_ReflectsReadiness(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/v1/session", nil)
	var payload sessionPayload
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload.Ready {
		t.Error("session should not be ready before bootstrap")
	}

	h.manager.SetReady()
	rec = h.request(t, http.MethodGet, "/v1/session", nil)
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if !payload.Ready {
		t.Error("session should be ready after bootstrap")
	}
}

func TestPutRoute(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodPut, "/v1/route", map[string]string{"route": "/verify"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if h.manager.Route() != "/verify" {
		t.Errorf("route = %q, want /verify", h.manager.Route())
	}

	rec = h.request(t, http.MethodPut, "/v1/route", map[string]string{"route": "no-slash"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a route without leading slash", rec.Code)
	}
}

func TestGetProfile(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/v1/profile", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated profile read status = %d, want 401", rec.Code)
	}

	h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})

	rec = h.request(t, http.MethodGet, "/v1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var p profile.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding profile: %v", err)
	}
	if p.Role != auth.RoleManager || p.Name != "Pat" {
		t.Errorf("profile = %+v", p)
	}
}

func TestGetPermissions(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/v1/permissions", nil)
	var payload permissionsPayload
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if len(payload.Permissions) != 0 {
		t.Errorf("signed-out permissions = %v, want empty", payload.Permissions)
	}

	h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})

	rec = h.request(t, http.MethodGet, "/v1/permissions", nil)
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload.Role != "manager" {
		t.Errorf("role = %q, want manager", payload.Role)
	}
	got := map[string]bool{}
	for _, perm := range payload.Permissions {
		got[perm] = true
	}
	if !got[string(auth.PermApproveBudgets)] || !got[string(auth.PermViewBudgets)] {
		t.Errorf("manager permissions missing expected grants: %v", payload.Permissions)
	}
	if got[string(auth.PermManageUsers)] {
		t.Error("manager should not hold manage_users")
	}
}

func TestListAudit(t *testing.T) {
	h := newTestHarness(t)
	h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "wrong"})
	h.request(t, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "user@example.com", "password": "hunter2"})

	rec := h.request(t, http.MethodGet, "/v1/audit?event=sign_in&outcome=failure", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result audit.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding audit page: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("failed sign_in entries = %d, want 1", result.Total)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHarness(t)

	rec := h.request(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]any
	json.Unmarshal(rec.Body.Bytes(), &payload)
	if payload["status"] != "ok" {
		t.Errorf("health status = %v", payload["status"])
	}
}

func TestStart_RunsInjectedHub(t *testing.T) {
	h := newTestHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.server.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { h.server.Close() })

	hub := h.server.Hub()
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("hub should close clients when the server context is cancelled")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, open := <-client.send; open {
		t.Error("client send channel should be closed on shutdown")
	}
}
