// Package backend is the HTTP client for the hosted backend: password
// and refresh-token grants, account management, the user_profiles row
// endpoints and the device trust RPCs. Failures map to sentinel errors
// so callers can branch without parsing backend messages.
package backend
