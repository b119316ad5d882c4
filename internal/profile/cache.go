package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/auth"
)

// errCacheMiss indicates no usable cache row.
var errCacheMiss = errors.New("profile cache miss")

// cache is the SQLite-backed profile cache. One row per user id;
// fetched_at drives the freshness decision made by the service.
type cache struct {
	db *sql.DB
}

func (c *cache) get(ctx context.Context, userID string) (*Profile, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, role, budget_limit, COALESCE(expiration_date, ''),
		       budget_warning_enabled, budget_warning_days,
		       advanced_features_enabled, fetched_at
		FROM profile_cache WHERE id = ?`, userID)

	var (
		p          Profile
		role       string
		expiration string
		fetchedAt  string
	)
	err := row.Scan(&p.ID, &p.Name, &role, &p.BudgetLimit, &expiration,
		&p.BudgetWarningEnabled, &p.BudgetWarningDays,
		&p.AdvancedFeaturesEnabled, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile cache: %w", err)
	}

	p.Role = auth.Role(role)
	if expiration != "" {
		if ts, err := time.Parse(time.RFC3339, expiration); err == nil {
			p.ExpirationDate = ts
		}
	}
	ts, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("reading profile cache: bad fetched_at: %w", err)
	}
	p.FetchedAt = ts
	return &p, nil
}

func (c *cache) put(ctx context.Context, p *Profile) error {
	expiration := ""
	if !p.ExpirationDate.IsZero() {
		expiration = p.ExpirationDate.UTC().Format(time.RFC3339)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO profile_cache
			(id, name, role, budget_limit, expiration_date,
			 budget_warning_enabled, budget_warning_days,
			 advanced_features_enabled, fetched_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			budget_limit = excluded.budget_limit,
			expiration_date = excluded.expiration_date,
			budget_warning_enabled = excluded.budget_warning_enabled,
			budget_warning_days = excluded.budget_warning_days,
			advanced_features_enabled = excluded.advanced_features_enabled,
			fetched_at = excluded.fetched_at`,
		p.ID, p.Name, string(p.Role), p.BudgetLimit, expiration,
		p.BudgetWarningEnabled, p.BudgetWarningDays,
		p.AdvancedFeaturesEnabled, p.FetchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing profile cache: %w", err)
	}
	return nil
}

func (c *cache) delete(ctx context.Context, userID string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM profile_cache WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("evicting profile cache: %w", err)
	}
	return nil
}

func (c *cache) clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM profile_cache`); err != nil {
		return fmt.Errorf("clearing profile cache: %w", err)
	}
	return nil
}
