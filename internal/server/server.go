// Package server exposes the ecosystem gateway client over HTTP for the
// dashboard: aggregated health and metrics, the service registry, and a
// websocket stream of health snapshots.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ecogateway/internal/config"
	"ecogateway/internal/ecosystem"
	"ecogateway/internal/middleware"
	"ecogateway/pkg/errors"
	"ecogateway/pkg/metrics"
)

// Server serves the gateway HTTP API
type Server struct {
	config   config.Server
	client   atomic.Pointer[ecosystem.Client]
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	server   *http.Server

	// stop ends open streams on shutdown
	stop     chan struct{}
	stopOnce sync.Once
	streams  sync.WaitGroup
}

// New creates a server around client
func New(cfg config.Server, client *ecosystem.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 30 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{
		config: cfg,
		logger: logger.With("component", "http"),
		stop:   make(chan struct{}),
	}
	s.client.Store(client)
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			s.logger.Warn("WebSocket upgrade error",
				"status", status,
				"error", reason,
				"remote", r.RemoteAddr,
			)
			http.Error(w, reason.Error(), status)
		},
	}
	return s
}

// WithMetrics enables request metrics and the Prometheus endpoint
func (s *Server) WithMetrics(m *metrics.Metrics) *Server {
	s.metrics = m
	return s
}

// SetClient swaps the client used by subsequent requests. In-flight
// requests finish with the client they started with.
func (s *Server) SetClient(client *ecosystem.Client) {
	s.client.Store(client)
	s.logger.Info("Ecosystem client replaced", "services", client.Registry().Len())
}

// Client returns the current client
func (s *Server) Client() *ecosystem.Client {
	return s.client.Load()
}

// Handler returns the routed handler wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ecosystem/health", s.handleHealth)
	mux.HandleFunc("GET /api/ecosystem/health/{key}", s.handleServiceHealth)
	mux.HandleFunc("GET /api/ecosystem/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/ecosystem/services", s.handleServices)
	mux.HandleFunc("GET /api/ecosystem/services/{key}", s.handleService)
	mux.HandleFunc("GET /api/ecosystem/stream", s.handleStream)
	mux.HandleFunc("GET /live", s.handleLive)
	mux.Handle("GET "+s.config.MetricsPath, s.metrics.Handler())

	chain := []middleware.Middleware{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.AccessLog(s.logger, s.metrics),
	}
	if s.config.CORS.Enabled {
		chain = append(chain, middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   s.config.CORS.AllowedMethods,
			AllowedHeaders:   s.config.CORS.AllowedHeaders,
			AllowCredentials: s.config.CORS.AllowCredentials,
			MaxAge:           s.config.CORS.MaxAge,
		}))
	}

	return middleware.Chain(chain...)(mux)
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Address()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// Create listener to detect bind errors early
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewError(errors.ErrorTypeConfig, fmt.Sprintf("failed to bind to %s", addr)).WithCause(err)
	}

	s.logger.Info("starting server", "addr", listener.Addr().String())

	go func() {
		if err := s.server.Serve(listener); err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server and closes open streams
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	var err error
	if s.server != nil {
		s.logger.Info("stopping server")
		err = s.server.Shutdown(ctx)
	}

	// Hijacked websocket connections are not tracked by Shutdown
	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// checkOrigin applies the CORS origin list to websocket upgrades
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.config.CORS.Enabled {
		return true
	}
	for _, allowed := range s.config.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
