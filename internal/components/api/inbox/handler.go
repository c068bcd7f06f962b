// Package inbox implements the notification inbox and trash handlers.
// Accept and decline dispatch on the stored notification type.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/components/notifications"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// ListResponse wraps a list of inbox or trash items.
type ListResponse struct {
	Notifications []*notifications.Notification `json:"notifications"`
}

// AcceptResponse reports what an accepted notification turned into.
type AcceptResponse struct {
	Type     string `json:"type"`
	FriendID string `json:"friendId,omitempty"`
	EventID  string `json:"eventId,omitempty"`
}

// EmptyResponse reports how many trash entries were removed.
type EmptyResponse struct {
	Removed int `json:"removed"`
}

// Handler handles the /api/inbox and /api/trash endpoints.
type Handler struct {
	processor   *notifications.Processor
	trash       *notifications.Trash
	currentUser func(context.Context) (*identity.User, error)
	log         *slog.Logger
}

// NewHandler creates an inbox handler.
func NewHandler(
	processor *notifications.Processor,
	trash *notifications.Trash,
	currentUser func(context.Context) (*identity.User, error),
	log *slog.Logger,
) *Handler {
	log = logutil.NoopIfNil(log)
	return &Handler{
		processor:   processor,
		trash:       trash,
		currentUser: currentUser,
		log:         log,
	}
}

// HandleList handles GET /api/inbox.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	list, err := h.processor.List(r.Context(), user.ID)
	if err != nil {
		api.WriteStoreError(w, h.log, err, "notifications")
		return
	}
	api.WriteJSON(w, http.StatusOK, ListResponse{Notifications: list})
}

// HandleAccept handles POST /api/inbox/{notificationId}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	n, err := h.processor.Accept(r.Context(), notifications.Party{ID: user.ID, FullName: user.FullName}, chi.URLParam(r, "notificationId"))
	if err != nil {
		h.writeResolveError(w, err)
		return
	}

	resp := AcceptResponse{Type: n.Type}
	switch n.Type {
	case notifications.TypeFriendRequest:
		resp.FriendID = n.SenderID
	case notifications.TypeEventShare:
		resp.EventID = n.EventID
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// HandleDecline handles POST /api/inbox/{notificationId}/decline. Any
// notification can be declined, malformed ones included.
func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.processor.Decline(r.Context(), user.ID, chi.URLParam(r, "notificationId")); err != nil {
		h.writeResolveError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkRead handles POST /api/inbox/{notificationId}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.processor.MarkRead(r.Context(), user.ID, chi.URLParam(r, "notificationId")); err != nil {
		h.writeResolveError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListTrash handles GET /api/trash.
func (h *Handler) HandleListTrash(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	list, err := h.trash.List(r.Context(), user.ID)
	if err != nil {
		api.WriteStoreError(w, h.log, err, "trash")
		return
	}
	api.WriteJSON(w, http.StatusOK, ListResponse{Notifications: list})
}

// HandleDeleteTrash handles DELETE /api/trash/{notificationId}.
func (h *Handler) HandleDeleteTrash(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.trash.Delete(r.Context(), user.ID, chi.URLParam(r, "notificationId")); err != nil {
		api.WriteStoreError(w, h.log, err, "trash entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEmptyTrash handles DELETE /api/trash.
func (h *Handler) HandleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	n, err := h.trash.Empty(r.Context(), user.ID)
	if err != nil {
		api.WriteStoreError(w, h.log, err, "trash")
		return
	}
	api.WriteJSON(w, http.StatusOK, EmptyResponse{Removed: n})
}

func (h *Handler) writeResolveError(w http.ResponseWriter, err error) {
	var (
		malformed *notifications.MalformedNotificationError
		partial   *notifications.PartialFriendshipError
	)
	switch {
	case errors.Is(err, notifications.ErrNotificationNotFound):
		api.WriteNotFound(w, "notification not found")
	case errors.Is(err, notifications.ErrWrongType):
		api.WriteError(w, http.StatusConflict, api.ReasonWrongType, err.Error())
	case errors.As(err, &malformed):
		api.WriteError(w, http.StatusUnprocessableEntity, api.ReasonMalformedNotification,
			fmt.Sprintf("notification is missing or has an invalid %s; it can still be declined", malformed.Field))
	case errors.As(err, &partial):
		h.log.Warn("one-sided friendship", "recipient_id", partial.RecipientID, "sender_id", partial.SenderID, "error", partial.Err)
		api.WriteError(w, http.StatusBadGateway, api.ReasonPartialWrite,
			"the friend was added to your list but your friend's list could not be updated; accept again to retry")
	default:
		api.WriteStoreError(w, h.log, err, "notification")
	}
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (*identity.User, bool) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return nil, false
	}
	return user, true
}
