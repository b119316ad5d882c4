package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const profilesPath = "/rest/v1/user_profiles"

// ProfileRecord is the wire shape of a user_profiles row.
type ProfileRecord struct {
	ID                      string   `json:"id"`
	Name                    string   `json:"name"`
	Role                    string   `json:"role"`
	BudgetLimit             *float64 `json:"budget_limit,omitempty"`
	ExpirationDate          string   `json:"expiration_date,omitempty"`
	BudgetWarningEnabled    bool     `json:"budget_warning_enabled"`
	BudgetWarningDays       int      `json:"budget_warning_days"`
	AdvancedFeaturesEnabled bool     `json:"advanced_features_enabled"`
}

// GetProfile fetches the profile row for a user. Returns
// ErrProfileNotFound when no row exists.
func (c *Client) GetProfile(ctx context.Context, accessToken, userID string) (*ProfileRecord, error) {
	path := profilesPath + "?id=eq." + url.QueryEscape(userID)
	var rows []ProfileRecord
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, &rows); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrProfileNotFound
	}
	return &rows[0], nil
}

// CreateProfile inserts a profile row. The backend enforces the primary
// key, so a concurrent create surfaces as a conflict error.
func (c *Client) CreateProfile(ctx context.Context, accessToken string, record ProfileRecord) error {
	if err := c.do(ctx, http.MethodPost, profilesPath, accessToken, record, nil); err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// UpdateProfile patches fields on an existing profile row.
func (c *Client) UpdateProfile(ctx context.Context, accessToken, userID string, fields map[string]any) error {
	path := profilesPath + "?id=eq." + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodPatch, path, accessToken, fields, nil); err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}
