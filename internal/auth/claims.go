package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrClaimsUnreadable indicates a token whose claims could not be decoded.
var ErrClaimsUnreadable = errors.New("token claims unreadable")

// TokenClaims is the subset of backend access-token claims the agent
// reads. The agent has no signing key, so claims are extracted without
// signature verification and are only ever used for local bookkeeping
// (expiry checks, user correlation) - never as an authorisation input.
type TokenClaims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// ExtractClaims decodes a backend access token without verifying its
// signature and returns the claims the agent cares about.
func ExtractClaims(tokenString string) (*TokenClaims, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClaimsUnreadable, err)
	}

	out := &TokenClaims{}

	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	if out.Subject == "" && out.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: no usable claims", ErrClaimsUnreadable)
	}

	return out, nil
}
