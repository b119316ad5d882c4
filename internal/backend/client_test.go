package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.BackendConfig{
		URL:            srv.URL,
		APIKey:         "test-api-key",
		RequestTimeout: 5,
	}
	return New(cfg, slog.Default()), srv
}

func signTestJWT(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestSignInWithPassword_Success(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/v1/token", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("grant_type") != "password" {
			t.Errorf("grant_type = %q, want password", req.URL.Query().Get("grant_type"))
		}
		if req.Header.Get("apikey") != "test-api-key" {
			t.Error("request should carry the project api key")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "access-token",
			"refresh_token": "refresh-token",
			"expires_at": ` + strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10) + `,
			"user": {"id": "user-1", "email": "user@example.com", "user_metadata": {"name": "Pat"}}
		}`))
	})
	client, _ := newTestClient(t, r)

	sess, user, err := client.SignInWithPassword(context.Background(), "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if sess.AccessToken != "access-token" || sess.RefreshToken != "refresh-token" {
		t.Errorf("session tokens = %q/%q", sess.AccessToken, sess.RefreshToken)
	}
	if sess.Expired(time.Now()) {
		t.Error("returned session should not be expired")
	}
	if user.ID != "user-1" || user.Name != "Pat" {
		t.Errorf("user = %+v", user)
	}
}

func TestSignInWithPassword_InvalidCredentials(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/v1/token", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Invalid login credentials"}`))
	})
	client, _ := newTestClient(t, r)

	_, _, err := client.SignInWithPassword(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials, got %v", err)
	}
}

func TestSignUp_DuplicateRegistration(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/v1/signup", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"msg": "User already registered"}`))
	})
	client, _ := newTestClient(t, r)

	err := client.SignUp(context.Background(), "user@example.com", "hunter2", "Pat")
	if !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("want ErrDuplicateRegistration, got %v", err)
	}
}

func TestRefreshSession_ExpiryFromClaims(t *testing.T) {
	exp := time.Now().Add(45 * time.Minute)
	access := signTestJWT(t, "user-1", exp)

	r := chi.NewRouter()
	r.Post("/auth/v1/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "` + access + `",
			"refresh_token": "rotated-refresh",
			"user": {"id": "user-1", "email": "user@example.com"}
		}`))
	})
	client, _ := newTestClient(t, r)

	sess, _, err := client.RefreshSession(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if sess.ExpiresAt != exp.Unix() {
		t.Errorf("expiry = %d, want %d from the token exp claim", sess.ExpiresAt, exp.Unix())
	}
}

func TestSignOut_SendsBearerToken(t *testing.T) {
	var gotAuth string
	r := chi.NewRouter()
	r.Post("/auth/v1/logout", func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	client, _ := newTestClient(t, r)

	if err := client.SignOut(context.Background(), "user-access-token"); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if gotAuth != "Bearer user-access-token" {
		t.Errorf("Authorization = %q, want the user token as bearer", gotAuth)
	}
}

func TestGetProfile(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/rest/v1/user_profiles", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if req.URL.Query().Get("id") == "eq.user-1" {
			w.Write([]byte(`[{"id": "user-1", "name": "Pat", "role": "manager"}]`))
			return
		}
		w.Write([]byte(`[]`))
	})
	client, _ := newTestClient(t, r)

	record, err := client.GetProfile(context.Background(), "token", "user-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if record.Role != "manager" {
		t.Errorf("role = %q, want manager", record.Role)
	}

	_, err = client.GetProfile(context.Background(), "token", "nobody")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("missing row should return ErrProfileNotFound, got %v", err)
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/rest/v1/user_profiles", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "JWT expired"}`))
	})
	client, _ := newTestClient(t, r)

	_, err := client.GetProfile(context.Background(), "stale-token", "user-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestTrustDevice_PostsFingerprint(t *testing.T) {
	var gotBody string
	r := chi.NewRouter()
	r.Post("/rest/v1/rpc/trust_device", func(w http.ResponseWriter, req *http.Request) {
		buf := make([]byte, 1024)
		n, _ := req.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	})
	client, _ := newTestClient(t, r)

	if err := client.TrustDevice(context.Background(), "token", "abc123", "workbench"); err != nil {
		t.Fatalf("TrustDevice failed: %v", err)
	}
	if gotBody == "" {
		t.Fatal("trust_device should post a body")
	}
}

type fakeLatencyRecorder struct {
	operations []string
	successes  []bool
}

func (f *fakeLatencyRecorder) RecordBackendLatency(operation string, _ time.Duration, success bool) {
	f.operations = append(f.operations, operation)
	f.successes = append(f.successes, success)
}

func TestClientRecordsLatency(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/auth/v1/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error_description": "Invalid login credentials"}`))
	})
	r.Post("/auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client, _ := newTestClient(t, r)
	recorder := &fakeLatencyRecorder{}
	client.SetMetrics(recorder)

	_, _, _ = client.SignInWithPassword(context.Background(), "user@example.com", "wrong")
	if err := client.SignOut(context.Background(), "access-token"); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	if len(recorder.operations) != 2 {
		t.Fatalf("recorded %d operations, want 2", len(recorder.operations))
	}
	if recorder.operations[0] != "POST /auth/v1/token" {
		t.Errorf("operation = %q, want query-stripped label", recorder.operations[0])
	}
	if recorder.successes[0] {
		t.Error("failed sign-in should be recorded as failure")
	}
	if !recorder.successes[1] {
		t.Error("successful sign-out should be recorded as success")
	}
}
