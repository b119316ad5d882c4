package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
	"github.com/workbenchhq/workbench-agent/internal/session"
)

// wireEvent is the backend's event frame.
type wireEvent struct {
	Event   string `json:"event"`
	Payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
		User         struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"user"`
	} `json:"payload"`
}

// Stream maintains the websocket connection to the backend auth event
// endpoint and converts frames into session events. Connection loss
// triggers reconnection with capped exponential backoff; events are
// delivered in arrival order on the Events channel.
type Stream struct {
	url    string
	apiKey string
	cfg    config.RealtimeConfig
	events chan session.AuthEvent
	logger *slog.Logger
}

// New builds a stream from the backend and realtime configuration.
func New(backendURL string, cfg config.RealtimeConfig, apiKey string, logger *slog.Logger) (*Stream, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + cfg.Path

	return &Stream{
		url:    u.String(),
		apiKey: apiKey,
		cfg:    cfg,
		events: make(chan session.AuthEvent, 16),
		logger: logger,
	}, nil
}

// Events returns the channel auth events are delivered on. The channel
// closes when Run returns.
func (s *Stream) Events() <-chan session.AuthEvent {
	return s.events
}

// Run connects and pumps events until the context ends.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.events)

	delay := time.Duration(s.cfg.Reconnect.InitialDelay) * time.Second
	maxDelay := time.Duration(s.cfg.Reconnect.MaxDelay) * time.Second
	if delay <= 0 {
		delay = time.Second
	}
	if maxDelay < delay {
		maxDelay = 60 * time.Second
	}
	backoff := delay

	for {
		if err := s.connectAndPump(ctx); err != nil {
			s.logger.Warn("event stream disconnected", "error", err)
		}
		if ctx.Err() != nil {
			return
		}

		s.logger.Debug("reconnecting event stream", "delay", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxDelay {
			backoff = maxDelay
		}
	}
}

// connectAndPump runs one connection lifetime: dial, read loop with
// ping keepalive, convert frames to events.
func (s *Stream) connectAndPump(ctx context.Context) error {
	header := map[string][]string{"apikey": {s.apiKey}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.logger.Info("event stream connected")

	pingInterval := time.Duration(s.cfg.PingInterval) * time.Second
	pongWait := time.Duration(s.cfg.PongTimeout) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if pongWait <= 0 {
		pongWait = 10 * time.Second
	}

	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	// Close the connection when the context ends so the read loop
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteMessage(websocket.CloseMessage, nil)
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(pongWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, ok := s.decode(message)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decode converts a frame into an auth event. Unknown frames are
// dropped with a debug log.
func (s *Stream) decode(message []byte) (session.AuthEvent, bool) {
	var frame wireEvent
	if err := json.Unmarshal(message, &frame); err != nil {
		s.logger.Debug("unparseable event frame", "error", err)
		return session.AuthEvent{}, false
	}

	ev := session.AuthEvent{
		Type: session.EventType(frame.Event),
		At:   time.Now(),
	}
	switch ev.Type {
	case session.EventSignedIn, session.EventSignedOut, session.EventTokenRefreshed,
		session.EventPasswordRecovery, session.EventUserUpdated:
	default:
		s.logger.Debug("unknown event type", "type", frame.Event)
		return session.AuthEvent{}, false
	}

	if frame.Payload.AccessToken != "" {
		ev.Session = &session.Session{
			AccessToken:  frame.Payload.AccessToken,
			RefreshToken: frame.Payload.RefreshToken,
			ExpiresAt:    frame.Payload.ExpiresAt,
			UserID:       frame.Payload.User.ID,
			Email:        frame.Payload.User.Email,
		}
		ev.User = &session.AuthenticatedUser{
			ID:    frame.Payload.User.ID,
			Email: frame.Payload.User.Email,
			Name:  frame.Payload.User.Name,
		}
	}
	return ev, true
}
