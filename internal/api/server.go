// Package api provides the local HTTP and WebSocket surface the SPA
// front-end talks to: authentication operations, session and profile
// reads, permission queries, route reporting and the directive stream.
//
// The server follows the same lifecycle pattern as the other
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// It binds to loopback only; the hosted backend is never exposed
// through it directly.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/workbenchhq/workbench-agent/internal/audit"
	"github.com/workbenchhq/workbench-agent/internal/auth"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/config"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/database"
	"github.com/workbenchhq/workbench-agent/internal/infrastructure/logging"
	"github.com/workbenchhq/workbench-agent/internal/profile"
	"github.com/workbenchhq/workbench-agent/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.LocalAPIConfig
	Logger   *logging.Logger
	Manager  *session.Manager
	Auth     *session.Service
	Profiles *profile.Service
	Resolver *auth.Resolver
	Audit    audit.Repository
	DB       *database.DB

	// ExternalHub lets the caller share one hub between the server and
	// the session listener. The server creates its own when nil.
	ExternalHub *Hub
	Version     string
}

// Server is the local API server.
type Server struct {
	cfg      config.LocalAPIConfig
	logger   *logging.Logger
	manager  *session.Manager
	auth     *session.Service
	profiles *profile.Service
	resolver *auth.Resolver
	audit    audit.Repository
	db       *database.DB
	version  string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server with the given dependencies. The server is
// not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		manager:  deps.Manager,
		auth:     deps.Auth,
		profiles: deps.Profiles,
		resolver: deps.Resolver,
		audit:    deps.Audit,
		db:       deps.DB,
		version:  deps.Version,
	}
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
	}
	return s, nil
}

// Hub returns the server's websocket hub, creating it if needed. Used
// by callers that wire the hub into the session listener before Start.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.cfg.WebSocket, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections. Session snapshots are
// relayed to websocket subscribers for the server's lifetime.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.cfg.WebSocket, s.logger)
	}
	// The server owns the hub's lifecycle even when the hub was
	// injected, so clients are torn down on shutdown.
	go s.hub.Run(srvCtx)
	go s.relaySnapshots(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("local API server error", "error", err)
		}
	}()

	s.logger.Info("local API listening", "address", s.server.Addr)
	return nil
}

// relaySnapshots forwards manager state changes to websocket clients
// subscribed to the session channel.
func (s *Server) relaySnapshots(ctx context.Context) {
	snapshots, cancel := s.manager.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapshots:
			s.hub.Broadcast(ChannelSession, snapshotPayload(snap))
		}
	}
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("local API shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down local API: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
