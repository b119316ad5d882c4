package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/session"
)

// Broker is the slice of Client the mirror needs. Narrowed for tests.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	PublishEvent(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// SignOutFunc performs a local sign-out. Wired to the session service.
type SignOutFunc func(ctx context.Context) error

// Mirror relays session state onto the broker and accepts remote
// commands. It publishes a retained session snapshot on every state
// change and one message per handled auth event, and subscribes to the
// agent's command topic for remote sign-out.
//
// Everything here is best effort. Publish failures are logged and
// dropped; the local session is the source of truth.
type Mirror struct {
	broker  Broker
	topics  Topics
	manager *session.Manager
	signOut SignOutFunc
	logger  *slog.Logger
}

// NewMirror builds a mirror over a connected broker client.
func NewMirror(broker Broker, topics Topics, manager *session.Manager, signOut SignOutFunc, logger *slog.Logger) *Mirror {
	return &Mirror{
		broker:  broker,
		topics:  topics,
		manager: manager,
		signOut: signOut,
		logger:  logger,
	}
}

// statePayload is the retained session snapshot published to the
// broker. Tokens stay local.
type statePayload struct {
	SignedIn  bool   `json:"signed_in"`
	Ready     bool   `json:"ready"`
	Route     string `json:"route"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// eventPayload is published per handled auth event.
type eventPayload struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	At     string `json:"at"`
}

// commandPayload is the inbound command envelope.
type commandPayload struct {
	Action string `json:"action"`
}

// Run subscribes to the command topic and relays manager snapshots
// until the context ends. Blocks; run in a goroutine.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.broker.Subscribe(m.topics.Command(), 1, m.handleCommand(ctx)); err != nil {
		return err
	}

	snapshots, cancel := m.manager.Subscribe()
	defer cancel()

	// Publish the current state up front so the retained topic is
	// populated even if nothing changes for a while.
	m.publishState(m.manager.Current())

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			m.publishState(snap)
		}
	}
}

// ObserveAuthEvent implements session.EventSink.
func (m *Mirror) ObserveAuthEvent(ev session.AuthEvent) {
	payload := eventPayload{
		Type: string(ev.Type),
		At:   ev.At.UTC().Format(time.RFC3339),
	}
	if ev.Session != nil {
		payload.UserID = ev.Session.UserID
	} else if ev.User != nil {
		payload.UserID = ev.User.ID
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := m.broker.PublishEvent(m.topics.AuthEvent(), data); err != nil {
		m.logger.Warn("publishing auth event failed", "error", err)
	}
}

func (m *Mirror) publishState(snap session.Snapshot) {
	payload := statePayload{
		SignedIn:  snap.SignedIn(),
		Ready:     snap.Ready,
		Route:     snap.Route,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if snap.Session != nil {
		payload.UserID = snap.Session.UserID
		payload.Email = snap.Session.Email
		payload.ExpiresAt = snap.Session.ExpiresAt
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := m.broker.PublishRetained(m.topics.SessionState(), data); err != nil {
		m.logger.Warn("publishing session state failed", "error", err)
	}
}

// handleCommand returns the handler for the agent's command topic.
// Only sign_out is recognised; anything else is logged and dropped.
func (m *Mirror) handleCommand(ctx context.Context) MessageHandler {
	return func(topic string, payload []byte) error {
		var cmd commandPayload
		if err := json.Unmarshal(payload, &cmd); err != nil {
			m.logger.Warn("malformed bridge command", "topic", topic, "error", err)
			return nil
		}

		switch cmd.Action {
		case "sign_out":
			m.logger.Info("remote sign-out command received")
			if err := m.signOut(ctx); err != nil {
				m.logger.Warn("remote sign-out failed", "error", err)
			}
		default:
			m.logger.Debug("ignoring unknown bridge command", "action", cmd.Action)
		}
		return nil
	}
}
