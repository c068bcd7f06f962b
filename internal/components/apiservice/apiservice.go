// Package apiservice mounts the JSON API handlers under /api.
package apiservice

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/api/account"
	apievents "github.com/MahdiBaghbani/calshare-go/internal/components/api/events"
	apifriends "github.com/MahdiBaghbani/calshare-go/internal/components/api/friends"
	apiinbox "github.com/MahdiBaghbani/calshare-go/internal/components/api/inbox"
	"github.com/MahdiBaghbani/calshare-go/internal/components/api/pushws"
	"github.com/MahdiBaghbani/calshare-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// Handlers groups the endpoint handlers. Push may be nil; a nil Health answers ok unconditionally.
type Handlers struct {
	Health  http.HandlerFunc
	Account *account.Handler
	Events  *apievents.Handler
	Friends *apifriends.Handler
	Inbox   *apiinbox.Handler
	Push    *pushws.Handler
}

// Service is the /api service.
type Service struct {
	router  chi.Router
	closers []io.Closer
	log     *slog.Logger
}

// New builds the API router. closers are released by Close in reverse order.
func New(h Handlers, log *slog.Logger, closers ...io.Closer) *Service {
	log = logutil.NoopIfNil(log)

	r := chi.NewRouter()

	health := h.Health
	if health == nil {
		health = api.NewHealthHandler(nil, log)
	}
	r.Get("/healthz", health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Account.HandleRegister) // public
		r.Post("/login", h.Account.HandleLogin)       // public
		r.Post("/logout", h.Account.HandleLogout)
	})
	r.Get("/me", h.Account.HandleGetMe)
	r.Patch("/me", h.Account.HandlePatchMe)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.Events.HandleListUpcoming)
		r.Post("/", h.Events.HandleCreate)
		r.Get("/concluded", h.Events.HandleListConcluded)
		r.Get("/export.ics", h.Events.HandleExportICS)
		r.Get("/{eventId}", h.Events.HandleGet)
		r.Put("/{eventId}", h.Events.HandleUpdate)
		r.Delete("/{eventId}", h.Events.HandleDelete)
		r.Post("/{eventId}/conclude", h.Events.HandleConclude)
	})

	r.Route("/friends", func(r chi.Router) {
		r.Get("/", h.Friends.HandleList)
		r.Post("/requests", h.Friends.HandleSendRequest)
		r.Delete("/{userId}", h.Friends.HandleRemove)
	})

	r.Route("/inbox", func(r chi.Router) {
		r.Get("/", h.Inbox.HandleList)
		r.Post("/{notificationId}/accept", h.Inbox.HandleAccept)
		r.Post("/{notificationId}/decline", h.Inbox.HandleDecline)
		r.Post("/{notificationId}/read", h.Inbox.HandleMarkRead)
	})

	r.Route("/trash", func(r chi.Router) {
		r.Get("/", h.Inbox.HandleListTrash)
		r.Delete("/", h.Inbox.HandleEmptyTrash)
		r.Delete("/{notificationId}", h.Inbox.HandleDeleteTrash)
	})

	if h.Push != nil {
		r.Get("/push/ws", h.Push.HandleWS)
	}

	return &Service{router: r, closers: closers, log: log}
}

// Handler returns the API router.
func (s *Service) Handler() http.Handler { return s.router }

// Prefix returns the mount prefix.
func (s *Service) Prefix() string { return "api" }

// Unprotected lists the endpoints reachable without a session.
func (s *Service) Unprotected() []string {
	return []string{"/healthz", "/auth/register", "/auth/login"}
}

// Close releases the background resources handed to New.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.log.Warn("api resource close failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ service.Service = (*Service)(nil)
