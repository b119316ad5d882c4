package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/workbenchhq/workbench-agent/internal/audit"
	"github.com/workbenchhq/workbench-agent/internal/backend"
	"github.com/workbenchhq/workbench-agent/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type updateUserRequest struct {
	Password string `json:"password"`
	Email    string `json:"email"`
}

// handleLogin signs the user in against the backend.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	sess, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.recordAudit(r.Context(), audit.EventSignIn, audit.OutcomeFailure, "",
			map[string]any{"email": req.Email, "reason": err.Error()})
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.EventSignIn, audit.OutcomeSuccess, sess.UserID, nil)
	writeJSON(w, http.StatusOK, snapshotPayload(s.manager.Current()))
}

// handleLogout signs the user out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if snap := s.manager.Current(); snap.User != nil {
		userID = snap.User.ID
	}

	if err := s.auth.SignOut(r.Context()); err != nil {
		s.recordAudit(r.Context(), audit.EventSignOut, audit.OutcomeFailure, userID,
			map[string]any{"reason": err.Error()})
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.EventSignOut, audit.OutcomeSuccess, userID, nil)
	writeJSON(w, http.StatusOK, snapshotPayload(s.manager.Current()))
}

// handleSignup registers a new account. Verification happens over
// email; no session is created here.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	if err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.Name); err != nil {
		s.recordAudit(r.Context(), audit.EventSignUp, audit.OutcomeFailure, "",
			map[string]any{"email": req.Email, "reason": err.Error()})
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.EventSignUp, audit.OutcomeSuccess, "",
		map[string]any{"email": req.Email})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "verification_email_sent",
	})
}

// handlePasswordReset requests a reset email for the given address.
func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Email); err != nil {
		s.recordAudit(r.Context(), audit.EventPasswordReset, audit.OutcomeFailure, "",
			map[string]any{"email": req.Email, "reason": err.Error()})
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.EventPasswordReset, audit.OutcomeSuccess, "",
		map[string]any{"email": req.Email})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "reset_email_sent",
	})
}

// handleUpdateUser changes the signed-in user's password or email.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Password == "" && req.Email == "" {
		writeBadRequest(w, "password or email is required")
		return
	}

	userID := ""
	if snap := s.manager.Current(); snap.User != nil {
		userID = snap.User.ID
	}

	update := session.UserUpdate{Password: req.Password, Email: req.Email}
	if err := s.auth.UpdateUser(r.Context(), update); err != nil {
		s.recordAudit(r.Context(), audit.EventUserUpdate, audit.OutcomeFailure, userID,
			map[string]any{"reason": err.Error()})
		s.writeAuthError(w, err)
		return
	}

	s.recordAudit(r.Context(), audit.EventUserUpdate, audit.OutcomeSuccess, userID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "update_submitted"})
}

// writeAuthError maps domain errors to HTTP responses.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid email or password")
	case errors.Is(err, session.ErrProfileMissing):
		writeForbidden(w, "account has no profile; contact an administrator")
	case errors.Is(err, backend.ErrDuplicateRegistration):
		writeConflict(w, "an account with this email already exists")
	case errors.Is(err, session.ErrSameEmail):
		writeBadRequest(w, "new email must differ from the current email")
	case errors.Is(err, session.ErrNoSession):
		writeUnauthorized(w, "not signed in")
	case errors.Is(err, backend.ErrUnauthorized):
		writeUnauthorized(w, "session rejected by backend")
	case errors.Is(err, session.ErrStaleSession):
		writeConflict(w, "session expired before it could be adopted")
	default:
		s.logger.Error("auth operation failed", "error", err)
		writeBadGateway(w, "backend request failed")
	}
}

// recordAudit appends to the audit trail, logging rather than failing
// the request when the write goes wrong.
func (s *Server) recordAudit(ctx context.Context, event, outcome, userID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{Event: event, Outcome: outcome, UserID: userID, Details: details}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", "event", event, "error", err)
	}
}
