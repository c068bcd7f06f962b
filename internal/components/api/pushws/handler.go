// Package pushws upgrades authenticated requests to the push websocket.
package pushws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/components/push"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// Handler serves GET /api/push/ws.
type Handler struct {
	hub         *push.Hub
	currentUser func(context.Context) (*identity.User, error)
	log         *slog.Logger
}

// NewHandler creates a push websocket handler.
func NewHandler(hub *push.Hub, currentUser func(context.Context) (*identity.User, error), log *slog.Logger) *Handler {
	log = logutil.NoopIfNil(log)
	return &Handler{hub: hub, currentUser: currentUser, log: log}
}

// HandleWS registers the connection under the session's user.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	h.log.Debug("push connection", "user_id", user.ID)
	h.hub.ServeWS(w, r, user.ID)
}
