// Package auth provides session authentication middleware for HTTP servers.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// ErrNoUser is returned by CurrentUser on an unauthenticated request.
var ErrNoUser = errors.New("no authenticated user")

type contextKey string

const (
	sessionContextKey contextKey = "session"
	userContextKey    contextKey = "user"
)

// SessionLookup resolves session tokens.
type SessionLookup interface {
	Get(ctx context.Context, token string) (*identity.Session, error)
}

// UserLookup resolves user ids.
type UserLookup interface {
	Get(ctx context.Context, id string) (*identity.User, error)
}

// AuthGateConfig configures the session auth gate middleware.
type AuthGateConfig struct {
	// RequireAuth returns true if the given path requires session authentication.
	RequireAuth func(path string) bool

	Log *slog.Logger

	// Sessions and Users may be nil only if RequireAuth always returns false.
	Sessions SessionLookup
	Users    UserLookup
}

// NewAuthGate returns a middleware that enforces session authentication.
// If RequireAuth returns false for the request path, the request passes through
// without token parsing, session validation, or context enrichment.
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := ExtractSessionToken(r)
			if token == "" {
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
				return
			}

			session, err := cfg.Sessions.Get(r.Context(), token)
			switch {
			case errors.Is(err, identity.ErrSessionExpired):
				api.WriteUnauthorized(w, api.ReasonSessionExpired, "session has expired")
				return
			case err != nil:
				if !errors.Is(err, identity.ErrSessionNotFound) {
					cfg.Log.Warn("session lookup failed", "error", err)
				}
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session not found or expired")
				return
			}

			user, err := cfg.Users.Get(r.Context(), session.UserID)
			if err != nil {
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session user not found")
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, userContextKey, user)
			ctx = appctx.WithUserID(ctx, user.ID)

			// handler-only; the access log keeps its own fields
			reqLogger := appctx.GetLogger(ctx).With("user_id", user.ID)
			ctx = appctx.WithLogger(ctx, reqLogger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractSessionToken gets the session token from cookie or Authorization header.
func ExtractSessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// GetSessionFromContext returns the session from request context.
func GetSessionFromContext(ctx context.Context) *identity.Session {
	session, _ := ctx.Value(sessionContextKey).(*identity.Session)
	return session
}

// GetUserFromContext returns the user from request context.
func GetUserFromContext(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userContextKey).(*identity.User)
	return user
}

// CurrentUser is the resolver handlers are given.
func CurrentUser(ctx context.Context) (*identity.User, error) {
	if u := GetUserFromContext(ctx); u != nil {
		return u, nil
	}
	return nil, ErrNoUser
}

// WithUser attaches user to ctx the way the gate does. It is meant for
// handler tests that bypass the gate.
func WithUser(ctx context.Context, user *identity.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return appctx.WithUserID(ctx, user.ID)
}
