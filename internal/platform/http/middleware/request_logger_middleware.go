// Package middleware provides always-on transport middleware for the HTTP server.
package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// RequestLoggerMiddleware attaches a request-scoped logger carrying
// request_id, method, path and client_ip to the request context.
//
// Must run after chimw.RequestID.
func RequestLoggerMiddleware(base *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	base = logutil.NoopIfNil(base)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := appctx.WithLogger(r.Context(), requestLogger(base, trustedProxies, r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(base *slog.Logger, trustedProxies *realip.TrustedProxies, r *http.Request) *slog.Logger {
	return base.With(
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path, // no query string: it may carry tokens
		"client_ip", trustedProxies.GetClientIPString(r),
	)
}
