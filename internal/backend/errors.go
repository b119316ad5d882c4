package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for backend API failures. Handlers map these to
// status codes and user-facing messages.
var (
	// ErrInvalidCredentials indicates a sign-in with a wrong email or
	// password.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrDuplicateRegistration indicates a sign-up for an address that
	// already has an account.
	ErrDuplicateRegistration = errors.New("email already registered")

	// ErrUnauthorized indicates a request whose access token the
	// backend rejected.
	ErrUnauthorized = errors.New("backend rejected access token")

	// ErrProfileNotFound indicates a profile lookup with no matching
	// row.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrBackend is the catch-all for backend failures that carry no
	// more specific meaning.
	ErrBackend = errors.New("backend request failed")
)

// apiError is the backend's error envelope. The auth endpoints use
// error/error_description, the row endpoints use message; both shapes
// are accepted.
type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// classify maps an error response to a sentinel, keeping the backend's
// message for context.
func classify(status int, body []byte) error {
	var envelope apiError
	_ = json.Unmarshal(body, &envelope)
	msg := envelope.text()
	lower := strings.ToLower(msg)

	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case strings.Contains(lower, "invalid login credentials"):
		return ErrInvalidCredentials
	case strings.Contains(lower, "already registered"):
		return ErrDuplicateRegistration
	}
	if msg == "" {
		return fmt.Errorf("%w: status %d", ErrBackend, status)
	}
	return fmt.Errorf("%w: status %d: %s", ErrBackend, status, msg)
}
