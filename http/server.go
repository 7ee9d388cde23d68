// Package http serves the forecasting pipeline over JSON and websocket.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stockcast/db"
	"stockcast/pipeline"
)

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        60 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// Server owns the HTTP listener, the progress hub and its relay.
type Server struct {
	server *http.Server
	hub    *ProgressHub
	log    *zap.SugaredLogger

	session *pipeline.Session
	cancel  context.CancelFunc
}

func NewServer(config ServerConfig, session *pipeline.Session, store *db.Store, log *zap.SugaredLogger) *Server {
	hub := NewProgressHub(log)
	handlers := NewHandlers(session, store, hub, log)

	mux := http.NewServeMux()
	handlers.Register(mux)

	chain := Chain(
		RecoveryMiddleware(log),
		LoggerMiddleware(log),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		hub:     hub,
		log:     log,
		session: session,
	}
}

// Start runs the hub, the progress relay and the listener. It blocks until
// the server stops.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.hub.Run(ctx)

	events, unsubscribe := s.session.Subscribe()
	go func() {
		defer unsubscribe()
		s.hub.Relay(ctx, events)
	}()

	s.log.Infow("http server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the hub down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.cancel != nil {
		s.cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
