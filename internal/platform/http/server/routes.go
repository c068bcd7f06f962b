package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/calshare-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/calshare-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups is the single source of truth for gating decisions.
// Per-service exceptions come from Service.Unprotected().
var routeGroups = []RouteGroup{
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired reports whether path needs a session. metricsPath is
// public when non-empty; unknown paths require auth.
func IsAuthRequired(path, metricsPath string, mountedServices []service.Service) bool {
	if metricsPath != "" && pathMatchesPrefix(path, metricsPath) {
		return false
	}

	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		svcBase := ""
		if prefix := svc.Prefix(); prefix != "" {
			svcBase = "/" + prefix
		}
		for _, unprotected := range svc.Unprotected() {
			if pathMatchesPrefix(path, svcBase+unprotected) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}

func (s *Server) metricsPath() string {
	if !s.cfg.Metrics.Enabled {
		return ""
	}
	if s.cfg.Metrics.Path == "" {
		return "/metrics"
	}
	return s.cfg.Metrics.Path
}

// setupRoutes creates the chi router and mounts every service.
func (s *Server) setupRoutes(services []service.Service) chi.Router {
	r := chi.NewRouter()

	// RequestID -> request-scoped logger -> access log -> recoverer -> interceptors -> auth gate
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger, s.opts.TrustedProxies))
	r.Use(httpmw.AccessLogMiddleware(s.logger, s.opts.TrustedProxies))
	r.Use(chimw.Recoverer)
	for _, mw := range s.opts.Interceptors {
		r.Use(mw)
	}

	metricsPath := s.metricsPath()
	// evaluated per request so it always reflects mountedServices
	requireAuth := func(path string) bool {
		return IsAuthRequired(path, metricsPath, s.mountedServices)
	}
	r.Use(auth.NewAuthGate(auth.AuthGateConfig{
		RequireAuth: requireAuth,
		Log:         s.logger,
		Sessions:    s.opts.Sessions,
		Users:       s.opts.Users,
	}))

	if metricsPath != "" {
		r.Method(http.MethodGet, metricsPath, metrics.Handler())
	}

	for _, svc := range services {
		s.mountService(r, svc)
	}

	return r
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	if prefix := svc.Prefix(); prefix != "" {
		r.Mount("/"+prefix, svc.Handler())
	} else {
		r.Mount("/", svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}
