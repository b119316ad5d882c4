package session

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the manager's state. Subscribers
// receive snapshots; they never share memory with the manager.
type Snapshot struct {
	Session *Session
	User    *AuthenticatedUser
	Ready   bool
	Route   string
}

// SignedIn reports whether the snapshot carries a current session.
func (s Snapshot) SignedIn() bool {
	return s.Session != nil
}

// Manager owns the current session, user, readiness flag and the
// SPA-reported route. All mutation funnels through its lock; concurrent
// updates resolve last-write-wins, except that an already-expired
// session is never adopted.
type Manager struct {
	mu      sync.RWMutex
	session *Session
	user    *AuthenticatedUser
	ready   bool
	route   string

	now  func() time.Time
	subs map[chan Snapshot]struct{}
}

// NewManager returns a manager with no current session and readiness
// unset.
func NewManager() *Manager {
	return &Manager{
		now:  time.Now,
		subs: make(map[chan Snapshot]struct{}),
	}
}

// Adopt installs a session and user as current. Returns
// ErrStaleSession, leaving state untouched, if the session's expiry has
// already passed.
func (m *Manager) Adopt(sess *Session, user *AuthenticatedUser) error {
	m.mu.Lock()
	if sess.Expired(m.now()) {
		m.mu.Unlock()
		return ErrStaleSession
	}
	m.session = sess
	m.user = user
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.broadcast(snap)
	return nil
}

// ClearSession drops the current session and user.
func (m *Manager) ClearSession() {
	m.mu.Lock()
	m.session = nil
	m.user = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.broadcast(snap)
}

// SetReady marks initialization complete. Ready is one-way: once set it
// stays set for the process lifetime.
func (m *Manager) SetReady() {
	m.mu.Lock()
	m.ready = true
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.broadcast(snap)
}

// SetRoute records the SPA's current route.
func (m *Manager) SetRoute(route string) {
	m.mu.Lock()
	m.route = route
	m.mu.Unlock()
}

// Route returns the last route the SPA reported.
func (m *Manager) Route() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.route
}

// Current returns a snapshot of the present state.
func (m *Manager) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// AccessToken returns the current access token, or "" when signed out.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// Subscribe registers for state change snapshots. The returned cancel
// func must be called when the subscriber goes away. Slow subscribers
// miss intermediate snapshots rather than blocking the manager.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{Ready: m.ready, Route: m.route}
	if m.session != nil {
		cp := *m.session
		snap.Session = &cp
	}
	if m.user != nil {
		cp := *m.user
		snap.User = &cp
	}
	return snap
}

func (m *Manager) broadcast(snap Snapshot) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
