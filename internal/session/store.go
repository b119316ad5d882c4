package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store persists at most one session between agent restarts.
//
// Get returns ErrNoSession when the store is empty and ErrSealCorrupt
// when the stored payload cannot be read; callers treat both as "no
// recoverable session".
type Store interface {
	Get(ctx context.Context) (*Session, error)
	Set(ctx context.Context, sess *Session) error
	Clear(ctx context.Context) error
}

// SQLiteStore keeps the session in a single sealed row of the
// credentials table.
type SQLiteStore struct {
	db     *sql.DB
	sealer *Sealer
	now    func() time.Time
}

// NewSQLiteStore wires a store over an already-migrated database.
func NewSQLiteStore(db *sql.DB, sealer *Sealer) *SQLiteStore {
	return &SQLiteStore{db: db, sealer: sealer, now: time.Now}
}

// Get loads and unseals the stored session.
func (s *SQLiteStore) Get(ctx context.Context) (*Session, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM credentials WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	plain, err := s.sealer.Open(payload)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, ErrSealCorrupt
	}
	return &sess, nil
}

// Set replaces the stored session.
func (s *SQLiteStore) Set(ctx context.Context, sess *Session) error {
	plain, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("sealing session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, payload, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sealed, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used by tests and by deployments
// that opt out of persistence.
type MemoryStore struct {
	mu   sync.Mutex
	sess *Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the held session or ErrNoSession.
func (m *MemoryStore) Get(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil, ErrNoSession
	}
	cp := *m.sess
	return &cp, nil
}

// Set replaces the held session.
func (m *MemoryStore) Set(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	m.sess = &cp
	return nil
}

// Clear drops the held session.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}
