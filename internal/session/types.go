package session

import (
	"errors"
	"time"
)

// Session is the access/refresh token pair representing an
// authenticated connection to the backend. Exactly one session is
// current at a time; adopting a new one fully replaces the prior one.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is the access token expiry as epoch seconds.
	ExpiresAt int64 `json:"expires_at"`

	// UserID and Email identify the authenticated user the tokens
	// belong to.
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Expired reports whether the session's expiry has passed at the given
// instant. A session observed expired must never be adopted as current.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return s.ExpiresAt <= now.Unix()
}

// ExpiresIn returns the remaining lifetime at the given instant.
// Negative durations mean the session is already expired.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}

// AuthenticatedUser is the backend-provided identity attached to a
// session. It is never persisted by this subsystem.
type AuthenticatedUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// UserUpdate describes a password or email change request.
type UserUpdate struct {
	Password string
	Email    string
}

// EventType identifies a backend-pushed authentication event.
type EventType string

// Authentication event types delivered by the backend event stream.
const (
	EventSignedIn         EventType = "signed-in"
	EventSignedOut        EventType = "signed-out"
	EventTokenRefreshed   EventType = "token-refreshed"
	EventPasswordRecovery EventType = "password-recovery"
	EventUserUpdated      EventType = "user-updated"
)

// AuthEvent is a backend-pushed authentication event. Session is nil
// for events that carry no session payload (signed-out).
type AuthEvent struct {
	Type    EventType
	Session *Session
	User    *AuthenticatedUser
	At      time.Time
}

// Front-end routes the agent directs the SPA towards. The SPA reports
// its current route back so that route-conditional events (verification
// flow) behave like the original application.
const (
	RouteLogin         = "/login"
	RouteVerify        = "/verify"
	RouteDashboard     = "/dashboard"
	RoutePasswordReset = "/password-reset"
)

// Sentinel errors for session lifecycle operations.
var (
	// ErrNoSession indicates the credential store holds no session.
	ErrNoSession = errors.New("no stored session")

	// ErrStaleSession indicates an attempt to adopt a session whose
	// expiry has already passed.
	ErrStaleSession = errors.New("session already expired")

	// ErrProfileMissing indicates a sign-in that authenticated against
	// the backend but has no profile row; the sign-in is unwound.
	ErrProfileMissing = errors.New("user has no profile")

	// ErrSealCorrupt indicates stored credentials that could not be
	// unsealed (tampering, key change, or disk corruption).
	ErrSealCorrupt = errors.New("stored credentials unreadable")

	// ErrSameEmail indicates an email change request naming the address
	// already on the account.
	ErrSameEmail = errors.New("new email matches current email")
)
