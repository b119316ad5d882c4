package session

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// State is the position of the session lifecycle state machine.
type State int

// Session lifecycle states. The machine starts Uninitialized, passes
// through Recovering and possibly Refreshing, and settles in Valid or
// SignedOut before readiness is declared.
const (
	StateUninitialized State = iota
	StateRecovering
	StateRefreshing
	StateValid
	StateSignedOut
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRecovering:
		return "recovering"
	case StateRefreshing:
		return "refreshing"
	case StateValid:
		return "valid"
	case StateSignedOut:
		return "signed-out"
	default:
		return "unknown"
	}
}

// Refresher exchanges a refresh token for a fresh session. Implemented
// by the backend client.
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*Session, *AuthenticatedUser, error)
}

// Bootstrapper recovers the session once at agent startup. Whatever
// happens, a single Run always terminates and always marks the manager
// ready, so the UI never waits on a wedged recovery.
type Bootstrapper struct {
	store     Store
	refresher Refresher
	manager   *Manager
	logger    *slog.Logger

	// leeway is subtracted from the stored expiry when deciding whether
	// a recovered session is still usable; sessions inside the leeway
	// window are refreshed rather than adopted.
	leeway time.Duration
	now    func() time.Time
}

// NewBootstrapper wires a bootstrapper over the store, refresher and
// manager.
func NewBootstrapper(store Store, refresher Refresher, manager *Manager, leeway time.Duration, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{
		store:     store,
		refresher: refresher,
		manager:   manager,
		logger:    logger,
		leeway:    leeway,
		now:       time.Now,
	}
}

// Run executes the recovery sequence and returns the terminal state.
// Panics anywhere in the sequence resolve to SignedOut; readiness is
// declared unconditionally on the way out.
func (b *Bootstrapper) Run(ctx context.Context) (state State) {
	defer b.manager.SetReady()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("session recovery panicked, treating as signed out", "panic", r)
			b.manager.ClearSession()
			state = StateSignedOut
		}
	}()

	b.logger.Debug("recovering stored session")

	stored, err := b.store.Get(ctx)
	switch {
	case err == nil && !b.insideLeeway(stored):
		user := &AuthenticatedUser{ID: stored.UserID, Email: stored.Email}
		if adoptErr := b.manager.Adopt(stored, user); adoptErr == nil {
			b.logger.Info("session recovered from store",
				"user_id", stored.UserID,
				"expires_in", stored.ExpiresIn(b.now()).Round(time.Second).String())
			return StateValid
		}
		// Raced past the leeway check; fall through to refresh.
		fallthrough

	case err == nil:
		return b.refresh(ctx, stored.RefreshToken)

	default:
		if !errors.Is(err, ErrNoSession) {
			// An unreadable payload stays unreadable; drop it so the
			// next start recovers cleanly.
			b.logger.Warn("stored session unreadable, clearing store", "error", err)
			return b.signOut(ctx)
		}
		b.logger.Info("no recoverable session, starting signed out")
		b.manager.ClearSession()
		return StateSignedOut
	}
}

// refresh performs the single refresh attempt. Failure of any kind
// resolves to a clean signed-out state with the store cleared.
func (b *Bootstrapper) refresh(ctx context.Context, refreshToken string) State {
	b.logger.Debug("stored session expired or expiring, refreshing")

	sess, user, err := b.refresher.RefreshSession(ctx, refreshToken)
	if err != nil {
		b.logger.Warn("session refresh failed, signing out", "error", err)
		return b.signOut(ctx)
	}
	if adoptErr := b.manager.Adopt(sess, user); adoptErr != nil {
		b.logger.Warn("refreshed session already expired, signing out")
		return b.signOut(ctx)
	}
	if err := b.store.Set(ctx, sess); err != nil {
		b.logger.Warn("persisting refreshed session failed", "error", err)
	}
	b.logger.Info("session refreshed", "user_id", sess.UserID)
	return StateValid
}

func (b *Bootstrapper) signOut(ctx context.Context) State {
	if err := b.store.Clear(ctx); err != nil {
		b.logger.Warn("clearing credential store failed", "error", err)
	}
	b.manager.ClearSession()
	return StateSignedOut
}

// insideLeeway reports whether the session expires within the leeway
// window (or already has).
func (b *Bootstrapper) insideLeeway(sess *Session) bool {
	return sess.ExpiresIn(b.now()) <= b.leeway
}
