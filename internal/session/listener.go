package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Frontend is the agent's channel back to the UI. Navigate and Notify
// are directives; the SPA decides how to render them.
type Frontend interface {
	Navigate(route string)
	Notify(level, message string)
}

// Notification levels used in directives.
const (
	NotifySuccess = "success"
	NotifyError   = "error"
)

// ProfileEnsurer lazily provisions a profile row for a user that lacks
// one. Implemented by the profile service.
type ProfileEnsurer interface {
	EnsureExists(ctx context.Context, accessToken string, user *AuthenticatedUser) error
}

// EventSink observes every handled auth event. Sinks are optional and
// best effort; the MQTT bridge and telemetry hang off this.
type EventSink interface {
	ObserveAuthEvent(ev AuthEvent)
}

// Listener applies backend-pushed auth events to the manager and
// emits front-end directives. Events are handled one at a time in
// arrival order; a session observed expired by the time its event is
// handled is discarded rather than adopted.
type Listener struct {
	manager  *Manager
	store    Store
	frontend Frontend
	profiles ProfileEnsurer
	logger   *slog.Logger
	now      func() time.Time
	sinks    []EventSink

	// wg tracks the provisioning goroutines spawned by signed-in
	// events so tests and shutdown can wait for them.
	wg sync.WaitGroup
}

// NewListener wires a listener over the manager, store, front-end and
// profile service.
func NewListener(manager *Manager, store Store, frontend Frontend, profiles ProfileEnsurer, logger *slog.Logger) *Listener {
	return &Listener{
		manager:  manager,
		store:    store,
		frontend: frontend,
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// AddSink registers an observer for handled events. Not safe to call
// once Run has started.
func (l *Listener) AddSink(sink EventSink) {
	l.sinks = append(l.sinks, sink)
}

// Run consumes events until the channel closes or the context ends,
// then waits for in-flight provisioning to finish.
func (l *Listener) Run(ctx context.Context, events <-chan AuthEvent) {
	defer l.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.Handle(ctx, ev)
		}
	}
}

// Handle applies a single event.
func (l *Listener) Handle(ctx context.Context, ev AuthEvent) {
	l.logger.Debug("auth event", "type", string(ev.Type))

	switch ev.Type {
	case EventSignedIn:
		l.handleSignedIn(ctx, ev)

	case EventTokenRefreshed:
		l.handleTokenRefreshed(ctx, ev)

	case EventSignedOut:
		l.manager.ClearSession()
		if err := l.store.Clear(ctx); err != nil {
			l.logger.Warn("clearing credential store failed", "error", err)
		}

	case EventPasswordRecovery:
		if l.manager.Route() == RouteVerify {
			l.frontend.Navigate(RoutePasswordReset)
		}

	case EventUserUpdated:
		if l.manager.Route() == RouteVerify {
			l.frontend.Notify(NotifySuccess, "Account updated. You're all set.")
			l.frontend.Navigate(RouteDashboard)
		}

	default:
		l.logger.Debug("ignoring unknown auth event", "type", string(ev.Type))
		return
	}

	for _, sink := range l.sinks {
		sink.ObserveAuthEvent(ev)
	}
}

func (l *Listener) handleSignedIn(ctx context.Context, ev AuthEvent) {
	if ev.Session == nil {
		l.logger.Warn("signed-in event without session payload, ignoring")
		return
	}
	user := ev.User
	if user == nil {
		user = &AuthenticatedUser{ID: ev.Session.UserID, Email: ev.Session.Email}
	}
	if err := l.manager.Adopt(ev.Session, user); err != nil {
		l.logger.Debug("discarding stale signed-in event", "user_id", user.ID)
		return
	}
	if err := l.store.Set(ctx, ev.Session); err != nil {
		l.logger.Warn("persisting session failed", "error", err)
	}

	if l.manager.Route() == RouteVerify {
		// Arriving via the email verification link: greet and move on.
		l.frontend.Notify(NotifySuccess, "Email verified. Welcome aboard.")
		l.frontend.Navigate(RouteDashboard)
		return
	}

	// Provision a profile row off the event path so a slow backend
	// never stalls event handling.
	token := ev.Session.AccessToken
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.profiles.EnsureExists(ctx, token, user); err != nil {
			l.logger.Warn("profile provisioning failed",
				"user_id", user.ID, "error", err)
		}
	}()
}

func (l *Listener) handleTokenRefreshed(ctx context.Context, ev AuthEvent) {
	if ev.Session == nil {
		l.logger.Debug("token-refreshed event without session payload, ignoring")
		return
	}
	user := ev.User
	if user == nil {
		user = &AuthenticatedUser{ID: ev.Session.UserID, Email: ev.Session.Email}
	}
	if err := l.manager.Adopt(ev.Session, user); err != nil {
		// Delivered after its own expiry; the current session stands.
		l.logger.Debug("discarding stale token-refreshed event")
		return
	}
	if err := l.store.Set(ctx, ev.Session); err != nil {
		l.logger.Warn("persisting refreshed session failed", "error", err)
	}
}
