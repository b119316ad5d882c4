package session

import (
	"errors"
	"testing"
	"time"
)

func testSession(expiresIn time.Duration) *Session {
	return &Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(expiresIn).Unix(),
		UserID:       "user-1",
		Email:        "user@example.com",
	}
}

func TestManager_AdoptValidSession(t *testing.T) {
	m := NewManager()
	sess := testSession(time.Hour)
	user := &AuthenticatedUser{ID: "user-1", Email: "user@example.com"}

	if err := m.Adopt(sess, user); err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}

	snap := m.Current()
	if !snap.SignedIn() {
		t.Error("snapshot should report signed in")
	}
	if snap.Session.AccessToken != "access-token" {
		t.Errorf("snapshot access token = %q, want %q", snap.Session.AccessToken, "access-token")
	}
	if snap.User.ID != "user-1" {
		t.Errorf("snapshot user id = %q, want %q", snap.User.ID, "user-1")
	}
}

func TestManager_AdoptRejectsExpiredSession(t *testing.T) {
	m := NewManager()
	current := testSession(time.Hour)
	if err := m.Adopt(current, &AuthenticatedUser{ID: "user-1"}); err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}

	stale := testSession(-time.Minute)
	err := m.Adopt(stale, &AuthenticatedUser{ID: "user-2"})
	if !errors.Is(err, ErrStaleSession) {
		t.Fatalf("Adopt of expired session should return ErrStaleSession, got %v", err)
	}

	snap := m.Current()
	if snap.Session == nil || snap.User.ID != "user-1" {
		t.Error("rejected adoption should leave the current session untouched")
	}
}

func TestManager_ClearSession(t *testing.T) {
	m := NewManager()
	if err := m.Adopt(testSession(time.Hour), &AuthenticatedUser{ID: "user-1"}); err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}

	m.ClearSession()

	snap := m.Current()
	if snap.SignedIn() {
		t.Error("snapshot should report signed out after clear")
	}
	if m.AccessToken() != "" {
		t.Error("access token should be empty after clear")
	}
}

func TestManager_SnapshotIsCopy(t *testing.T) {
	m := NewManager()
	if err := m.Adopt(testSession(time.Hour), &AuthenticatedUser{ID: "user-1"}); err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}

	snap := m.Current()
	snap.Session.AccessToken = "mutated"
	snap.User.ID = "mutated"

	fresh := m.Current()
	if fresh.Session.AccessToken != "access-token" || fresh.User.ID != "user-1" {
		t.Error("mutating a snapshot should not affect manager state")
	}
}

func TestManager_RouteTracking(t *testing.T) {
	m := NewManager()
	if m.Route() != "" {
		t.Errorf("initial route = %q, want empty", m.Route())
	}
	m.SetRoute(RouteVerify)
	if m.Route() != RouteVerify {
		t.Errorf("route = %q, want %q", m.Route(), RouteVerify)
	}
}

func TestManager_SubscribeReceivesSnapshots(t *testing.T) {
	m := NewManager()
	ch, cancel := m.Subscribe()
	defer cancel()

	if err := m.Adopt(testSession(time.Hour), &AuthenticatedUser{ID: "user-1"}); err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}

	select {
	case snap := <-ch:
		if !snap.SignedIn() {
			t.Error("broadcast snapshot should report signed in")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber should receive a snapshot after adoption")
	}
}

func TestManager_ReadyIsSticky(t *testing.T) {
	m := NewManager()
	if m.Current().Ready {
		t.Error("manager should start not ready")
	}
	m.SetReady()
	m.ClearSession()
	if !m.Current().Ready {
		t.Error("ready should survive subsequent state changes")
	}
}
