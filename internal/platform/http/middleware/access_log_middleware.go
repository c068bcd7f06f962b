package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
)

// AccessLogMiddleware writes one "request" line per request with status,
// bytes and duration_ms, and records the HTTP metrics.
//
// The base request fields come from the context logger set by
// RequestLoggerMiddleware; they are recomputed only when it is missing.
func AccessLogMiddleware(log *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				elapsed := time.Since(start)

				logger, ok := appctx.LoggerFromContext(r.Context())
				if !ok {
					logger = requestLogger(log, trustedProxies, r)
				}
				logger.Info("request",
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", elapsed.Milliseconds(),
				)

				route := routePattern(r)
				metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
				metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern keeps metric cardinality bounded by labeling with the chi
// route template instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
