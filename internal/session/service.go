package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// AuthBackend is the slice of the backend client the facade needs.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, *AuthenticatedUser, error)
	SignUp(ctx context.Context, email, password, name string) error
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdateUser(ctx context.Context, accessToken string, update UserUpdate) error
}

// ProfileGate answers whether a user already has a profile row. Used at
// sign-in, where a missing profile is a hard error rather than a
// provisioning trigger.
type ProfileGate interface {
	Exists(ctx context.Context, accessToken, userID string) (bool, error)
}

// TrustDispatcher fires the post-sign-in device trust call. The
// returned channel closes when the call completes; the facade does not
// wait on it.
type TrustDispatcher interface {
	ReportSignIn(accessToken string) <-chan struct{}
}

// Service is the authentication facade the local API talks to. It
// orchestrates the backend client, manager, store, profile gate and
// device trust around each user-initiated operation.
type Service struct {
	backend  AuthBackend
	store    Store
	manager  *Manager
	profiles ProfileGate
	trust    TrustDispatcher
	frontend Frontend
	logger   *slog.Logger
}

// NewService wires the facade.
func NewService(backend AuthBackend, store Store, manager *Manager, profiles ProfileGate, trust TrustDispatcher, frontend Frontend, logger *slog.Logger) *Service {
	return &Service{
		backend:  backend,
		store:    store,
		manager:  manager,
		profiles: profiles,
		trust:    trust,
		frontend: frontend,
		logger:   logger,
	}
}

// SignIn authenticates with the backend and installs the resulting
// session. A user authenticating successfully but holding no profile
// row is signed straight back out and gets ErrProfileMissing; partial
// sign-ins never survive.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	sess, user, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	exists, err := s.profiles.Exists(ctx, sess.AccessToken, user.ID)
	if err != nil {
		s.unwind(ctx, sess.AccessToken)
		return nil, fmt.Errorf("checking profile: %w", err)
	}
	if !exists {
		s.logger.Warn("sign-in without profile, unwinding", "user_id", user.ID)
		s.unwind(ctx, sess.AccessToken)
		return nil, ErrProfileMissing
	}

	if err := s.manager.Adopt(sess, user); err != nil {
		s.unwind(ctx, sess.AccessToken)
		return nil, err
	}
	if err := s.store.Set(ctx, sess); err != nil {
		s.logger.Warn("persisting session failed", "error", err)
	}

	if s.trust != nil {
		s.trust.ReportSignIn(sess.AccessToken)
	}

	s.logger.Info("signed in", "user_id", user.ID)
	s.frontend.Navigate(RouteDashboard)
	return sess, nil
}

// unwind tears down a sign-in that cannot complete. The backend
// sign-out is best effort; local state is cleared regardless.
func (s *Service) unwind(ctx context.Context, accessToken string) {
	if err := s.backend.SignOut(ctx, accessToken); err != nil {
		s.logger.Warn("unwind sign-out failed", "error", err)
	}
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("clearing credential store failed", "error", err)
	}
	s.manager.ClearSession()
}

// SignOut revokes the session with the backend, clears local state and
// sends the UI back to the login route. Backend failure does not keep
// the user signed in locally.
func (s *Service) SignOut(ctx context.Context) error {
	token := s.manager.AccessToken()
	if token != "" {
		if err := s.backend.SignOut(ctx, token); err != nil {
			s.logger.Warn("backend sign-out failed", "error", err)
		}
	}
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("clearing credential store failed", "error", err)
	}
	s.manager.ClearSession()
	s.logger.Info("signed out")
	s.frontend.Navigate(RouteLogin)
	return nil
}

// SignUp registers a new account. The backend sends the verification
// email; no session exists until the user completes verification.
func (s *Service) SignUp(ctx context.Context, email, password, name string) error {
	if err := s.backend.SignUp(ctx, email, password, name); err != nil {
		return err
	}
	s.logger.Info("sign-up submitted", "email", email)
	s.frontend.Notify(NotifySuccess, "Check your inbox to verify your account.")
	return nil
}

// ResetPassword requests a password reset email.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if err := s.backend.ResetPasswordForEmail(ctx, email); err != nil {
		return err
	}
	s.logger.Info("password reset requested", "email", email)
	s.frontend.Notify(NotifySuccess, "Password reset email sent.")
	return nil
}

// UpdateUser changes the signed-in user's password or email. An email
// change to the current address is rejected before touching the
// backend.
func (s *Service) UpdateUser(ctx context.Context, update UserUpdate) error {
	snap := s.manager.Current()
	if !snap.SignedIn() {
		return ErrNoSession
	}
	if update.Email != "" && snap.User != nil &&
		strings.EqualFold(update.Email, snap.User.Email) {
		return ErrSameEmail
	}
	if err := s.backend.UpdateUser(ctx, snap.Session.AccessToken, update); err != nil {
		return err
	}
	s.logger.Info("user update submitted", "user_id", snap.User.ID)
	return nil
}
