// Package ratelimit provides a fixed-window rate limiting interceptor keyed
// by client IP and backed by the cache counter.
package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/calshare-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/calshare-go/internal/interceptors"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/cache"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Config is decoded from [http.interceptors.ratelimit].
type Config struct {
	Enabled           bool  `mapstructure:"enabled"`
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`
}

// ApplyDefaults sets reasonable defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = int(cache.TTLRateLimit / time.Second)
	}
}

// Limiter counts requests per client key in fixed windows.
type Limiter struct {
	counter cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// NewLimiter creates a Limiter. keyFunc defaults to the request's RemoteAddr.
func NewLimiter(counter cache.Counter, keyFunc func(*http.Request) string, limit int64, window time.Duration, log *slog.Logger) *Limiter {
	log = logutil.NoopIfNil(log)
	if keyFunc == nil {
		keyFunc = func(r *http.Request) string { return r.RemoteAddr }
	}
	return &Limiter{counter: counter, keyFunc: keyFunc, limit: limit, window: window, log: log}
}

// New creates the ratelimit interceptor from its config section.
func New(conf map[string]any, deps interceptors.Deps) (interceptors.Middleware, error) {
	var c Config
	unused, err := svccfg.DecodeWithUnused(conf, &c)
	if err != nil {
		return nil, err
	}
	if deps.Counter == nil {
		return nil, errors.New("ratelimit requires a cache counter")
	}
	log := logutil.NoopIfNil(deps.Log)
	if len(unused) > 0 {
		log.Warn("unused config keys", "interceptor", "ratelimit", "unused_keys", unused)
	}

	limiter := NewLimiter(deps.Counter, deps.ClientIP, c.RequestsPerWindow, time.Duration(c.WindowSeconds)*time.Second, log)
	return limiter.Wrap, nil
}

// Wrap is the middleware function that applies rate limiting.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)
		count, resetAt, err := l.counter.Increment(r.Context(), "ratelimit:"+key, 1, l.window)
		if err != nil {
			// fail open
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}
