// Package account implements registration, login and profile settings handlers.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for clients that do not keep cookies.
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      *identity.User `json:"user"`
}

// Handler handles the auth and /api/me endpoints.
type Handler struct {
	dir          *identity.Directory
	userAuth     *identity.UserAuth
	sessions     *identity.Sessions
	secureCookie bool
	currentUser  func(context.Context) (*identity.User, error)
	log          *slog.Logger
}

// NewHandler creates an account handler. secureCookie marks the session
// cookie Secure and should be set behind TLS.
func NewHandler(
	dir *identity.Directory,
	userAuth *identity.UserAuth,
	sessions *identity.Sessions,
	secureCookie bool,
	currentUser func(context.Context) (*identity.User, error),
	log *slog.Logger,
) *Handler {
	log = logutil.NoopIfNil(log)
	return &Handler{
		dir:          dir,
		userAuth:     userAuth,
		sessions:     sessions,
		secureCookie: secureCookie,
		currentUser:  currentUser,
		log:          log,
	}
}

// HandleRegister handles POST /api/auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	if req.FullName == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "fullName is required")
		return
	}

	user, err := h.userAuth.Register(r.Context(), h.dir, req.Email, req.Password, req.FullName)
	switch {
	case errors.Is(err, identity.ErrEmailExists):
		api.WriteConflict(w, "email already in use")
		return
	case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrWeakPassword):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	case err != nil:
		api.WriteStoreError(w, h.log, err, "user")
		return
	}

	api.WriteJSON(w, http.StatusCreated, user)
}

// HandleLogin handles POST /api/auth/login. The token is returned in the
// body and set as the session cookie.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.userAuth.Authenticate(r.Context(), h.dir, req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidPassword) {
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid email or password")
		return
	}
	if err != nil {
		api.WriteStoreError(w, h.log, err, "user")
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.log.Error("failed to create session", "user_id", user.ID, "error", err)
		api.WriteInternalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	api.WriteJSON(w, http.StatusOK, LoginResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: user})
}

// HandleLogout handles POST /api/auth/logout. It succeeds without a session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.ExtractSessionToken(r); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			h.log.Warn("failed to delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetMe handles GET /api/me.
func (h *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}

// HandlePatchMe handles PATCH /api/me with an identity.SettingsPatch body.
func (h *Handler) HandlePatchMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	var patch identity.SettingsPatch
	if !api.DecodeJSON(w, r, &patch) {
		return
	}

	updated, err := h.dir.UpdateSettings(r.Context(), user.ID, patch)
	switch {
	case errors.Is(err, identity.ErrInvalidSetting):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	case errors.Is(err, identity.ErrUserNotFound):
		api.WriteNotFound(w, "user not found")
		return
	case err != nil:
		api.WriteStoreError(w, h.log, err, "user")
		return
	}
	api.WriteJSON(w, http.StatusOK, updated)
}
