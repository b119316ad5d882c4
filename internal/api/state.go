package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/workbenchhq/workbench-agent/internal/audit"
	"github.com/workbenchhq/workbench-agent/internal/backend"
	"github.com/workbenchhq/workbench-agent/internal/session"
)

// sessionPayload is the wire shape of a session snapshot. Tokens are
// never exposed to the SPA; it only learns who is signed in.
type sessionPayload struct {
	Ready     bool         `json:"ready"`
	SignedIn  bool         `json:"signed_in"`
	Route     string       `json:"route,omitempty"`
	User      *userPayload `json:"user,omitempty"`
	ExpiresAt int64        `json:"expires_at,omitempty"`
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// snapshotPayload converts a manager snapshot for the wire.
func snapshotPayload(snap session.Snapshot) sessionPayload {
	p := sessionPayload{
		Ready:    snap.Ready,
		SignedIn: snap.SignedIn(),
		Route:    snap.Route,
	}
	if snap.User != nil {
		p.User = &userPayload{ID: snap.User.ID, Email: snap.User.Email, Name: snap.User.Name}
	}
	if snap.Session != nil {
		p.ExpiresAt = snap.Session.ExpiresAt
	}
	return p
}

// handleGetSession returns the current session snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, snapshotPayload(s.manager.Current()))
}

type routeRequest struct {
	Route string `json:"route"`
}

// handlePutRoute records the SPA's current route. Route-conditional
// auth events consult this value.
func (s *Server) handlePutRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !strings.HasPrefix(req.Route, "/") {
		writeBadRequest(w, "route must start with /")
		return
	}
	s.manager.SetRoute(req.Route)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProfile returns the signed-in user's profile, served through
// the local cache.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Current()
	if !snap.SignedIn() {
		writeUnauthorized(w, "not signed in")
		return
	}

	p, err := s.profiles.Get(r.Context(), snap.Session.AccessToken, snap.User.ID)
	if err != nil {
		if errors.Is(err, backend.ErrProfileNotFound) {
			writeNotFound(w, "profile not found")
			return
		}
		s.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdateProfile patches the signed-in user's own profile row.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Current()
	if !snap.SignedIn() {
		writeUnauthorized(w, "not signed in")
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(fields) == 0 {
		writeBadRequest(w, "no fields to update")
		return
	}
	// Role and expiration changes go through administrative tooling,
	// never through the self-service endpoint.
	delete(fields, "role")
	delete(fields, "expiration_date")
	delete(fields, "id")
	if len(fields) == 0 {
		writeBadRequest(w, "no updatable fields")
		return
	}

	if err := s.profiles.Update(r.Context(), snap.Session.AccessToken, snap.User.ID, fields); err != nil {
		s.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// permissionsPayload is the wire shape of a permission query.
type permissionsPayload struct {
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
}

// handleGetPermissions returns the signed-in user's role and effective
// permission set.
func (s *Server) handleGetPermissions(w http.ResponseWriter, _ *http.Request) {
	payload := permissionsPayload{Permissions: []string{}}
	if role, ok := s.resolver.Role(); ok {
		payload.Role = string(role)
		for _, perm := range s.resolver.Permissions() {
			payload.Permissions = append(payload.Permissions, string(perm))
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleListAudit returns a page of the local audit trail.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not enabled")
		return
	}

	filter := audit.Filter{
		Event:   r.URL.Query().Get("event"),
		Outcome: r.URL.Query().Get("outcome"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
