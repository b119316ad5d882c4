package session

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/infrastructure/database"
	_ "github.com/workbenchhq/workbench-agent/migrations"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	sealer, err := NewSealer([]byte("test-agent-secret"), "test-fingerprint")
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	return sealer
}

func openStoreDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "store_test.db"),
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
	return db
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer := testSealer(t)
	plain := []byte(`{"access_token":"abc"}`)

	sealed, err := sealer.Seal(plain)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("abc")) {
		t.Error("sealed payload should not contain plaintext")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Errorf("round trip = %q, want %q", opened, plain)
	}
}

func TestSealer_RejectsTamperedPayload(t *testing.T) {
	sealer := testSealer(t)
	sealed, err := sealer.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff

	if _, err := sealer.Open(sealed); !errors.Is(err, ErrSealCorrupt) {
		t.Errorf("tampered payload should return ErrSealCorrupt, got %v", err)
	}
}

func TestSealer_RejectsWrongKey(t *testing.T) {
	sealer := testSealer(t)
	sealed, err := sealer.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	other, err := NewSealer([]byte("different-secret"), "test-fingerprint")
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	if _, err := other.Open(sealed); !errors.Is(err, ErrSealCorrupt) {
		t.Errorf("payload sealed under another key should return ErrSealCorrupt, got %v", err)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	db := openStoreDB(t)
	store := NewSQLiteStore(db.DB, testSealer(t))
	ctx := context.Background()

	want := &Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		UserID:       "user-1",
		Email:        "user@example.com",
	}
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestSQLiteStore_SetReplacesExisting(t *testing.T) {
	db := openStoreDB(t)
	store := NewSQLiteStore(db.DB, testSealer(t))
	ctx := context.Background()

	first := testSession(time.Hour)
	if err := store.Set(ctx, first); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	second := testSession(2 * time.Hour)
	second.AccessToken = "second-access"
	if err := store.Set(ctx, second); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccessToken != "second-access" {
		t.Errorf("stored token = %q, want %q", got.AccessToken, "second-access")
	}
}

func TestSQLiteStore_EmptyAndClear(t *testing.T) {
	db := openStoreDB(t)
	store := NewSQLiteStore(db.DB, testSealer(t))
	ctx := context.Background()

	if _, err := store.Get(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("empty store should return ErrNoSession, got %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Errorf("clearing an empty store should succeed, got %v", err)
	}

	if err := store.Set(ctx, testSession(time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := store.Get(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("cleared store should return ErrNoSession, got %v", err)
	}
}

func TestSQLiteStore_WrongKeyReportsCorrupt(t *testing.T) {
	db := openStoreDB(t)
	ctx := context.Background()

	writer := NewSQLiteStore(db.DB, testSealer(t))
	if err := writer.Set(ctx, testSession(time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	other, err := NewSealer([]byte("rotated-secret"), "test-fingerprint")
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	reader := NewSQLiteStore(db.DB, other)
	if _, err := reader.Get(ctx); !errors.Is(err, ErrSealCorrupt) {
		t.Errorf("payload sealed under old key should return ErrSealCorrupt, got %v", err)
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	want := testSession(time.Hour)
	if err := store.Set(ctx, want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}

	got.AccessToken = "mutated"
	again, _ := store.Get(ctx)
	if again.AccessToken != want.AccessToken {
		t.Error("mutating a returned session should not affect the store")
	}
}
