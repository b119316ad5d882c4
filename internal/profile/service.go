package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/auth"
	"github.com/workbenchhq/workbench-agent/internal/backend"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
	"github.com/workbenchhq/workbench-agent/internal/session"
)

// Backend is the slice of the backend client the profile service uses.
type Backend interface {
	GetProfile(ctx context.Context, accessToken, userID string) (*backend.ProfileRecord, error)
	CreateProfile(ctx context.Context, accessToken string, record backend.ProfileRecord) error
	UpdateProfile(ctx context.Context, accessToken, userID string, fields map[string]any) error
}

// CacheRecorder receives cache hit/miss outcomes. Implemented by the
// telemetry client.
type CacheRecorder interface {
	RecordCacheAccess(hit bool)
}

// Service is the read-through profile store. Reads inside the fresh
// window are served from the local cache; stale reads refetch from the
// backend, falling back to the cached copy while it remains inside the
// hard window.
type Service struct {
	backend Backend
	cache   *cache
	logger  *slog.Logger
	metrics CacheRecorder

	fresh             time.Duration
	hard              time.Duration
	defaultExpiration time.Duration

	now func() time.Time
}

// NewService wires a profile service over the backend client and the
// local database.
func NewService(bk Backend, db *sql.DB, cfg config.SessionConfig, logger *slog.Logger) *Service {
	return &Service{
		backend:           bk,
		cache:             &cache{db: db},
		logger:            logger,
		fresh:             cfg.ProfileCacheFreshDuration(),
		hard:              cfg.ProfileCacheHardDuration(),
		defaultExpiration: time.Duration(cfg.DefaultProfileExpirationDays) * 24 * time.Hour,
		now:               time.Now,
	}
}

// SetMetrics attaches a cache access recorder. Wired before the
// service handles any request.
func (s *Service) SetMetrics(metrics CacheRecorder) {
	s.metrics = metrics
}

// Get returns the profile for a user, consulting the cache first.
func (s *Service) Get(ctx context.Context, accessToken, userID string) (*Profile, error) {
	now := s.now()

	cached, err := s.cache.get(ctx, userID)
	hit := err == nil && now.Sub(cached.FetchedAt) < s.fresh
	if s.metrics != nil {
		s.metrics.RecordCacheAccess(hit)
	}
	if hit {
		return cached, nil
	}
	if err != nil && !errors.Is(err, errCacheMiss) {
		s.logger.Warn("profile cache read failed", "error", err)
	}

	record, fetchErr := s.backend.GetProfile(ctx, accessToken, userID)
	if fetchErr != nil {
		// Serve the stale copy while it is still inside the hard
		// window; a profile older than that is unusable.
		if cached != nil && now.Sub(cached.FetchedAt) < s.hard &&
			!errors.Is(fetchErr, backend.ErrProfileNotFound) {
			s.logger.Warn("profile refetch failed, serving cached copy",
				"user_id", userID, "error", fetchErr)
			return cached, nil
		}
		if errors.Is(fetchErr, backend.ErrProfileNotFound) {
			if cached != nil {
				if err := s.cache.delete(ctx, userID); err != nil {
					s.logger.Warn("evicting deleted profile failed", "error", err)
				}
			}
		}
		return nil, fetchErr
	}

	p := fromRecord(record, now)
	if p.ID != userID {
		// The backend answered for a different row; do not poison the
		// cache with it.
		return nil, fmt.Errorf("profile id mismatch: requested %s, got %s", userID, p.ID)
	}
	if err := s.cache.put(ctx, p); err != nil {
		s.logger.Warn("profile cache write failed", "error", err)
	}
	return p, nil
}

// Exists reports whether the user already has a profile row. Used as
// the sign-in gate, so it always asks the backend.
func (s *Service) Exists(ctx context.Context, accessToken, userID string) (bool, error) {
	_, err := s.backend.GetProfile(ctx, accessToken, userID)
	if errors.Is(err, backend.ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureExists provisions a profile row for a user that lacks one:
// role user, a one-year expiration, warnings off. A row created by a
// concurrent sign-in counts as success.
func (s *Service) EnsureExists(ctx context.Context, accessToken string, user *session.AuthenticatedUser) error {
	_, err := s.backend.GetProfile(ctx, accessToken, user.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, backend.ErrProfileNotFound) {
		return fmt.Errorf("checking profile: %w", err)
	}

	expiration := s.now().Add(s.defaultExpiration).UTC().Format("2006-01-02")
	record := backend.ProfileRecord{
		ID:             user.ID,
		Name:           user.Name,
		Role:           string(auth.RoleUser),
		ExpirationDate: expiration,
	}
	if err := s.backend.CreateProfile(ctx, accessToken, record); err != nil {
		if isDuplicate(err) {
			return nil
		}
		return fmt.Errorf("provisioning profile: %w", err)
	}
	s.logger.Info("profile provisioned", "user_id", user.ID, "expires", expiration)
	return nil
}

// Update patches the user's own profile row and evicts the cached
// copy so the next read sees the new values.
func (s *Service) Update(ctx context.Context, accessToken, userID string, fields map[string]any) error {
	if err := s.backend.UpdateProfile(ctx, accessToken, userID, fields); err != nil {
		return err
	}
	return s.Invalidate(ctx, userID)
}

// Invalidate evicts a user's cached profile.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	return s.cache.delete(ctx, userID)
}

// InvalidateAll empties the cache. Called on sign-out.
func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.cache.clear(ctx)
}

// isDuplicate detects a conflict on the profile primary key.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "conflict") ||
		strings.Contains(msg, "already exists")
}
