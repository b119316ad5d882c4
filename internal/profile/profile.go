package profile

import (
	"time"

	"github.com/workbenchhq/workbench-agent/internal/auth"
	"github.com/workbenchhq/workbench-agent/internal/backend"
)

// Profile is the per-user account record: display name, role and the
// budgeting preferences the UI renders.
type Profile struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name"`
	Role                    auth.Role `json:"role"`
	BudgetLimit             float64   `json:"budget_limit"`
	ExpirationDate          time.Time `json:"expiration_date"`
	BudgetWarningEnabled    bool      `json:"budget_warning_enabled"`
	BudgetWarningDays       int       `json:"budget_warning_days"`
	AdvancedFeaturesEnabled bool      `json:"advanced_features_enabled"`

	// FetchedAt is when this copy was read from the backend. Zero for
	// profiles that never touched the cache.
	FetchedAt time.Time `json:"-"`
}

// fromRecord converts a backend row into a Profile. Unknown roles pass
// through untouched; the permission layer treats them as granting
// nothing.
func fromRecord(record *backend.ProfileRecord, fetchedAt time.Time) *Profile {
	p := &Profile{
		ID:                      record.ID,
		Name:                    record.Name,
		Role:                    auth.Role(record.Role),
		BudgetWarningEnabled:    record.BudgetWarningEnabled,
		BudgetWarningDays:       record.BudgetWarningDays,
		AdvancedFeaturesEnabled: record.AdvancedFeaturesEnabled,
		FetchedAt:               fetchedAt,
	}
	if record.BudgetLimit != nil {
		p.BudgetLimit = *record.BudgetLimit
	}
	if record.ExpirationDate != "" {
		if ts, err := time.Parse(time.RFC3339, record.ExpirationDate); err == nil {
			p.ExpirationDate = ts
		} else if d, err := time.Parse("2006-01-02", record.ExpirationDate); err == nil {
			p.ExpirationDate = d
		}
	}
	return p
}

// Expired reports whether the account's expiration date has passed.
// Profiles without an expiration date never expire.
func (p *Profile) Expired(now time.Time) bool {
	if p.ExpirationDate.IsZero() {
		return false
	}
	return p.ExpirationDate.Before(now)
}
