// Package interceptors provides cross-cutting HTTP middleware built by name
// from the [http.interceptors.<name>] config sections.
package interceptors

import (
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/cache"
)

// Middleware is an HTTP middleware function.
type Middleware func(http.Handler) http.Handler

// Deps are the shared resources handed to every interceptor constructor.
type Deps struct {
	Counter  cache.Counter
	ClientIP func(*http.Request) string
	Log      *slog.Logger
}

// NewInterceptor is the constructor function type for interceptors.
type NewInterceptor func(conf map[string]any, deps Deps) (Middleware, error)
