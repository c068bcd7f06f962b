// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/calshare-go/internal/interceptors"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/config"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// ErrMissingAuth is returned when a service needs session auth but no
// session or user lookup was supplied.
var ErrMissingAuth = errors.New("session and user lookups are required when services are mounted")

// Options carries the shared request-path dependencies.
type Options struct {
	Sessions       auth.SessionLookup
	Users          auth.UserLookup
	TrustedProxies *realip.TrustedProxies

	// Interceptors run after recovery and before the auth gate, in order.
	Interceptors []interceptors.Middleware
}

// Server wraps the HTTP server and its mounted services.
type Server struct {
	cfg        *config.Config
	opts       Options
	httpServer *http.Server
	logger     *slog.Logger

	// mountedServices are closed in reverse mount order during shutdown.
	mountedServices []service.Service
}

// New creates a Server. Services are mounted in the given order; nil entries are skipped.
func New(cfg *config.Config, logger *slog.Logger, opts Options, services ...service.Service) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	mounted := 0
	for _, svc := range services {
		if svc != nil {
			mounted++
		}
	}
	if mounted > 0 && (opts.Sessions == nil || opts.Users == nil) {
		return nil, ErrMissingAuth
	}

	s := &Server{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
	}

	router := s.setupRoutes(services)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after a graceful Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server",
		"addr", ln.Addr().String(),
		"mode", s.cfg.Mode,
		"store_driver", s.cfg.Store.Driver,
		"push_transport", s.cfg.Push.Transport,
	)
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and all mounted services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	// last mounted, first closed
	var closeErrs []error
	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		prefix := svc.Prefix()
		if prefix == "" {
			prefix = "(root)"
		}
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error",
				"service", prefix,
				"error", err,
			)
			closeErrs = append(closeErrs, err)
		} else {
			s.logger.Debug("service closed", "service", prefix)
		}
	}

	return errors.Join(httpErr, errors.Join(closeErrs...))
}
