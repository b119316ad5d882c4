package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/auth"
	"github.com/workbenchhq/workbench-agent/internal/session"
)

// tokenResponse is the auth endpoints' session envelope.
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         wireUser `json:"user"`
}

type wireUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
}

// toSession converts the wire envelope, resolving the expiry. The
// backend usually sends expires_at directly; when it only sends
// expires_in the expiry is computed, and when it sends neither the
// token's own exp claim is the fallback.
func (t *tokenResponse) toSession(now time.Time) (*session.Session, *session.AuthenticatedUser, error) {
	expiresAt := t.ExpiresAt
	if expiresAt == 0 && t.ExpiresIn > 0 {
		expiresAt = now.Unix() + t.ExpiresIn
	}
	if expiresAt == 0 {
		claims, err := auth.ExtractClaims(t.AccessToken)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving session expiry: %w", err)
		}
		if claims.ExpiresAt.IsZero() {
			return nil, nil, fmt.Errorf("resolving session expiry: token carries no exp claim")
		}
		expiresAt = claims.ExpiresAt.Unix()
	}

	sess := &session.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       t.User.ID,
		Email:        t.User.Email,
	}
	user := &session.AuthenticatedUser{
		ID:    t.User.ID,
		Email: t.User.Email,
		Name:  t.User.UserMetadata.Name,
	}
	return sess, user, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, *session.AuthenticatedUser, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, nil, err
	}
	return resp.toSession(time.Now())
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*session.Session, *session.AuthenticatedUser, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": refreshToken}, &resp)
	if err != nil {
		return nil, nil, err
	}
	return resp.toSession(time.Now())
}

// SignUp registers a new account. The backend sends the verification
// email; no session is returned until verification completes.
func (c *Client) SignUp(ctx context.Context, email, password, name string) error {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"name": name},
	}
	return c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, nil)
}

// SignOut revokes the session behind the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// ResetPasswordForEmail asks the backend to send a reset email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", "",
		map[string]string{"email": email}, nil)
}

// UpdateUser changes the password or email on the account behind the
// access token.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, update session.UserUpdate) error {
	body := map[string]string{}
	if update.Password != "" {
		body["password"] = update.Password
	}
	if update.Email != "" {
		body["email"] = update.Email
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty user update", ErrBackend)
	}
	return c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, body, nil)
}
