// Package friends implements friend list and friend request handlers.
package friends

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/friends"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/components/push"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// ListResponse wraps the friend list.
type ListResponse struct {
	Friends []friends.Friend `json:"friends"`
}

// RequestBody is the body of POST /api/friends/requests.
type RequestBody struct {
	// FriendID is the recipient's public 7-digit friend id.
	FriendID string `json:"friendId"`
}

// RequestResponse confirms a sent friend request.
type RequestResponse struct {
	NotificationID string `json:"notificationId"`
	RecipientID    string `json:"recipientId"`
	RecipientName  string `json:"recipientName"`
}

// Handler handles the /api/friends endpoints.
type Handler struct {
	friends     *friends.Service
	users       friends.UserLookup
	sender      friends.RequestSender
	publisher   push.Publisher
	currentUser func(context.Context) (*identity.User, error)
	log         *slog.Logger
}

// NewHandler creates a friends handler. publisher may be nil.
func NewHandler(
	svc *friends.Service,
	users friends.UserLookup,
	sender friends.RequestSender,
	publisher push.Publisher,
	currentUser func(context.Context) (*identity.User, error),
	log *slog.Logger,
) *Handler {
	log = logutil.NoopIfNil(log)
	return &Handler{
		friends:     svc,
		users:       users,
		sender:      sender,
		publisher:   publisher,
		currentUser: currentUser,
		log:         log,
	}
}

// HandleList handles GET /api/friends.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	list, err := h.friends.List(r.Context(), user.ID)
	if err != nil {
		api.WriteStoreError(w, h.log, err, "friends")
		return
	}
	api.WriteJSON(w, http.StatusOK, ListResponse{Friends: list})
}

// HandleSendRequest handles POST /api/friends/requests.
func (h *Handler) HandleSendRequest(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	var body RequestBody
	if !api.DecodeJSON(w, r, &body) {
		return
	}
	if body.FriendID == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "friendId is required")
		return
	}

	to, notificationID, err := h.friends.SendRequest(r.Context(), h.users, h.sender, user, body.FriendID)
	switch {
	case errors.Is(err, friends.ErrUserNotFound):
		api.WriteNotFound(w, "no user with that friend id")
		return
	case errors.Is(err, friends.ErrSelfRequest):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	case errors.Is(err, friends.ErrAlreadyFriends):
		api.WriteConflict(w, "already friends")
		return
	case err != nil:
		api.WriteStoreError(w, h.log, err, "friend request")
		return
	}

	if h.publisher != nil {
		msg := push.Message{
			Kind:  push.KindInbox,
			Title: "New friend request",
			Body:  user.FullName + " wants to be your friend",
			Data:  map[string]any{"notificationId": notificationID},
		}
		if err := h.publisher.Publish(r.Context(), to.ID, msg); err != nil {
			h.log.Debug("inbox push failed", "recipient_id", to.ID, "error", err)
		}
	}

	api.WriteJSON(w, http.StatusCreated, RequestResponse{
		NotificationID: notificationID,
		RecipientID:    to.ID,
		RecipientName:  to.FullName,
	})
}

// HandleRemove handles DELETE /api/friends/{userId}. Only the caller's side
// of the relation is removed.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	if err := h.friends.Remove(r.Context(), user.ID, chi.URLParam(r, "userId")); err != nil {
		api.WriteStoreError(w, h.log, err, "friend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
