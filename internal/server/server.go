// Package server constructs and starts the room chat HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/registry"
)

// Server owns the room registry and serves the lobby and room endpoints.
type Server struct {
	cfg       Config
	log       *slog.Logger
	rooms     *registry.Registry
	protocol  *protocol.Handler
	validator *protocol.Validator
	metrics   *Metrics
	upgrader  websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in track against wg.Wait in Shutdown.
	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

// New builds a Server from cfg. The registry is created here and shared by
// every connection the server accepts.
func New(cfg Config, log *slog.Logger) (*Server, error) {
	cfg = cfg.Sanitize()
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	validator, err := protocol.NewValidator(cfg.NamePattern, cfg.MaxMessageBytes)
	if err != nil {
		return nil, err
	}

	rooms := registry.New(
		registry.WithLogger(log.With("component", "registry")),
		registry.WithMaxRooms(cfg.MaxRooms),
		registry.WithNameValidator(validator.ValidName),
	)
	metrics := NewMetrics(rooms)

	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		log:       log,
		rooms:     rooms,
		validator: validator,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.protocol = protocol.NewHandler(rooms, validator,
		protocol.WithLogger(log.With("component", "protocol")),
		protocol.WithThrottle(throttleFactory(cfg.RateLimit, metrics.throttled)),
		protocol.WithRejectHook(metrics.rejected),
	)
	return s, nil
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}

// Registry returns the room registry shared by all connections.
func (s *Server) Registry() *registry.Registry {
	return s.rooms
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// Write and idle timeouts are left to the WebSocket layer: hijacked
// connections may stay open indefinitely.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns nil once the server has been shut down.
func StartServer(server *http.Server, log *slog.Logger) error {
	log.Info("server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active requests to finish or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", "err", err)
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}

// track registers one connection handler with the shutdown WaitGroup. It
// reports false once Shutdown has started; the caller must then refuse the
// connection. A true result must be paired with s.wg.Done.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// Shutdown closes every WebSocket connection with a going-away code and
// waits for their handlers to finish, or until the timeout is reached.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("closing websocket connections")

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.cancel()
	closed := s.rooms.CloseAll(websocket.CloseGoingAway, "server shutdown")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("websocket shutdown completed", "closed", closed)
		return nil
	case <-time.After(timeout):
		s.log.Warn("websocket shutdown timeout reached, some connections may still be open")
		return context.DeadlineExceeded
	}
}
