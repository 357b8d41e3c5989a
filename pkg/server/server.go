package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/warden/pkg/telemetry/health"
)

// Default server timeouts.
const (
	DefaultReadTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Config contains the telemetry server settings.
type Config struct {
	// ListenAddress is the address to listen on. Port 0 picks a free port.
	ListenAddress string

	// MetricsPath is the path of the metrics endpoint.
	// Default: "/metrics"
	MetricsPath string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration
}

// Server is the telemetry HTTP server.
type Server struct {
	config       Config
	handler      http.Handler
	httpServer   *http.Server
	listener     net.Listener
	logger       *slog.Logger
	errChan      chan error
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server. metrics may be nil to serve health endpoints only.
func New(cfg Config, metrics http.Handler, checker *health.Checker, info health.VersionInfo) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		config:  cfg,
		logger:  slog.Default().With("component", "server"),
		errChan: make(chan error, 1),
	}
	s.handler = s.setupRoutes(metrics, checker, info)
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
	s.isRunning = true

	go func() {
		s.logger.Info("starting telemetry server",
			"address", ln.Addr().String(),
			"metrics_path", s.config.MetricsPath,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("telemetry server failed", "error", err)
			s.errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	return nil
}

// Errors delivers a serve failure. It never delivers after Shutdown.
func (s *Server) Errors() <-chan error {
	return s.errChan
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.isRunning = false
		srv := s.httpServer
		s.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.logger.Info("telemetry server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes(metrics http.Handler, checker *health.Checker, info health.VersionInfo) http.Handler {
	mux := http.NewServeMux()

	if metrics != nil {
		mux.Handle(s.config.MetricsPath, metrics)
	}
	if checker != nil {
		health.Mount(mux, checker, info)
	}

	return s.recovery(mux)
}

// recovery turns a handler panic into a 500 response.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in telemetry handler",
					"path", r.URL.Path,
					"panic", rec,
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
