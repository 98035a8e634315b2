package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// AccountRoutes mounts the account endpoints next to the relay.
type AccountRoutes interface {
	Mount(r chi.Router)
}

// Option customizes a Server.
type Option func(*Server)

// WithAccounts serves the account endpoints from routes.
func WithAccounts(routes AccountRoutes) Option {
	return func(s *Server) { s.accounts = routes }
}

// WithTokenVerifier makes register frames carry a token issued to the
// username being registered.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(s *Server) { s.tokens = v }
}

// Server wires the relay components together and exposes them over HTTP.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	registry *Registry
	router   *Router
	groups   *GroupDirectory
	gateway  *Gateway
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	accounts AccountRoutes
	tokens   TokenVerifier
	http     *http.Server
}

// New builds a Server from cfg. Nothing is started until Run or StartHub.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Server {
	cfg = cfg.sanitized()
	s := &Server{cfg: cfg, log: logger}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = NewRegistry()
	s.router = NewRouter(s.registry, logger.With().Str("component", "router").Logger())
	s.groups = NewGroupDirectory(s.router, logger.With().Str("component", "groups").Logger())
	s.gateway = NewGateway(s.registry, s.router, s.groups, s.tokens, logger.With().Str("component", "gateway").Logger())
	s.hub = NewHub(cfg, s.gateway, logger.With().Str("component", "hub").Logger())
	s.origins = newOriginPolicy(cfg.AllowedOrigins, logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.http = CreateServer(cfg.Port, s.routes())
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Registry returns the server's connection registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Groups returns the server's group directory.
func (s *Server) Groups() *GroupDirectory {
	return s.groups
}

// Hub returns the server's connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// StartHub starts the hub event loop in its own goroutine.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info().Msg("hub started")
}

// Run starts the hub and the HTTP listener and blocks until ctx is done or
// the listener fails, then shuts both down.
func (s *Server) Run(ctx context.Context) error {
	s.StartHub()

	errCh := make(chan error, 1)
	go func() {
		if err := StartServer(s.http, s.log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = s.hub.Shutdown(s.cfg.ShutdownTimeout)
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown stops accepting HTTP requests and closes every connection.
func (s *Server) Shutdown() error {
	httpErr := ShutdownServer(s.http, s.cfg.ShutdownTimeout, s.log)
	hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout)
	return errors.Join(httpErr, hubErr)
}
