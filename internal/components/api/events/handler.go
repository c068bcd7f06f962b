// Package events implements the calendar handlers: listing, creating,
// updating, concluding, deleting and exporting a user's events.
package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	eventcore "github.com/MahdiBaghbani/calshare-go/internal/components/events"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/components/push"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// EventRequest is the body of POST /api/events and PUT /api/events/{eventId}.
type EventRequest struct {
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	NotifyBefore *int      `json:"notifyBefore"`
	SharedWith   []string  `json:"sharedWith"`
}

// FailedRecipient is one unreached recipient of a share.
type FailedRecipient struct {
	RecipientID string `json:"recipientId"`
	Error       string `json:"error"`
}

// SaveResponse is returned by create and update. Failed lists recipients
// whose notification could not be written; the event itself was saved.
type SaveResponse struct {
	EventID string            `json:"eventId"`
	Failed  []FailedRecipient `json:"failed,omitempty"`
}

// ListResponse wraps an event list.
type ListResponse struct {
	Events []eventcore.Event `json:"events"`
}

// Handler handles the /api/events endpoints.
type Handler struct {
	workflow            *eventcore.Workflow
	publisher           push.Publisher
	defaultNotifyBefore int
	currentUser         func(context.Context) (*identity.User, error)
	log                 *slog.Logger
}

// NewHandler creates an events handler. publisher may be nil.
// defaultNotifyBefore applies when a request leaves notifyBefore unset.
func NewHandler(
	workflow *eventcore.Workflow,
	publisher push.Publisher,
	defaultNotifyBefore int,
	currentUser func(context.Context) (*identity.User, error),
	log *slog.Logger,
) *Handler {
	log = logutil.NoopIfNil(log)
	return &Handler{
		workflow:            workflow,
		publisher:           publisher,
		defaultNotifyBefore: defaultNotifyBefore,
		currentUser:         currentUser,
		log:                 log,
	}
}

// HandleListUpcoming handles GET /api/events. Past events are concluded first.
func (h *Handler) HandleListUpcoming(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.workflow.ListUpcoming)
}

// HandleListConcluded handles GET /api/events/concluded.
func (h *Handler) HandleListConcluded(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.workflow.ListConcluded)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, load func(context.Context, string) ([]eventcore.Event, error)) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	evs, err := load(r.Context(), user.ID)
	if err != nil {
		api.WriteStoreError(w, h.log, err, "events")
		return
	}
	api.WriteJSON(w, http.StatusOK, ListResponse{Events: evs})
}

// HandleGet handles GET /api/events/{eventId}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	ev, err := h.workflow.GetEvent(r.Context(), user.ID, chi.URLParam(r, "eventId"))
	if err != nil {
		api.WriteStoreError(w, h.log, err, "event")
		return
	}
	api.WriteJSON(w, http.StatusOK, ev)
}

// HandleCreate handles POST /api/events: 201 when every recipient was
// notified, 200 with the failed list otherwise, 409 on a duplicate.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "")
}

// HandleUpdate handles PUT /api/events/{eventId}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, chi.URLParam(r, "eventId"))
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, eventID string) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	var req EventRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	notifyBefore := h.defaultNotifyBefore
	if req.NotifyBefore != nil {
		notifyBefore = *req.NotifyBefore
	}
	res, err := h.workflow.CreateOrUpdateEvent(r.Context(), eventcore.EventInput{
		ID:           eventID,
		OwnerID:      user.ID,
		OwnerName:    user.FullName,
		Title:        req.Title,
		Date:         req.Date,
		NotifyBefore: notifyBefore,
		Recipients:   req.SharedWith,
	})
	switch {
	case errors.Is(err, eventcore.ErrInvalidEvent):
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	case errors.Is(err, eventcore.ErrDuplicateEvent):
		api.WriteError(w, http.StatusConflict, api.ReasonDuplicateEvent, "an event with this title and date already exists")
		return
	case err != nil:
		api.WriteStoreError(w, h.log, err, "event")
		return
	}

	h.notifyRecipients(r.Context(), res.FanOut.Sent, res.EventID, user.FullName, req.Title)

	resp := SaveResponse{EventID: res.EventID}
	for _, f := range res.FanOut.Failed {
		resp.Failed = append(resp.Failed, FailedRecipient{RecipientID: f.RecipientID, Error: failureText(f.Err)})
	}
	status := http.StatusOK
	if eventID == "" && res.FanOut.OK() {
		status = http.StatusCreated
	}
	api.WriteJSON(w, status, resp)
}

// HandleConclude handles POST /api/events/{eventId}/conclude.
func (h *Handler) HandleConclude(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.workflow.MarkConcluded(r.Context(), user.ID, chi.URLParam(r, "eventId")); err != nil {
		api.WriteStoreError(w, h.log, err, "event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete handles DELETE /api/events/{eventId}. Deleting a missing event succeeds.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.workflow.DeleteEvent(r.Context(), user.ID, chi.URLParam(r, "eventId")); err != nil {
		api.WriteStoreError(w, h.log, err, "event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExportICS handles GET /api/events/export.ics.
func (h *Handler) HandleExportICS(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	data, err := h.workflow.ExportICS(r.Context(), user.ID)
	if err != nil {
		api.WriteStoreError(w, h.log, err, "events")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calshare.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) notifyRecipients(ctx context.Context, recipients []string, eventID, senderName, title string) {
	if h.publisher == nil {
		return
	}
	for _, id := range recipients {
		err := h.publisher.Publish(ctx, id, push.Message{
			Kind:  push.KindInbox,
			Title: "New event invitation",
			Body:  senderName + " shared " + title + " with you",
			Data:  map[string]any{"eventId": eventID},
		})
		if err != nil {
			h.log.Debug("inbox push failed", "recipient_id", id, "error", err)
		}
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

// failureText keeps backend detail out of responses.
func failureText(err error) string {
	switch {
	case errors.Is(err, eventcore.ErrNotFriend):
		return api.ReasonNotFriend
	case errors.Is(err, store.ErrUnavailable):
		return api.ReasonUnavailable
	}
	return api.ReasonInternalError
}
