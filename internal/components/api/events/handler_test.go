package events_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	apievents "github.com/MahdiBaghbani/calshare-go/internal/components/api/events"
	"github.com/MahdiBaghbani/calshare-go/internal/components/events"
	"github.com/MahdiBaghbani/calshare-go/internal/components/friends"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/components/notifications"
	"github.com/MahdiBaghbani/calshare-go/internal/components/push"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
	storememory "github.com/MahdiBaghbani/calshare-go/internal/platform/store/memory"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store/storetest"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

var alice = &identity.User{ID: "u1", FullName: "Alice"}

type recordingPublisher struct {
	mu   sync.Mutex
	sent map[string][]push.Message
}

func (p *recordingPublisher) Publish(_ context.Context, userID string, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string][]push.Message)
	}
	p.sent[userID] = append(p.sent[userID], msg)
	return nil
}

func currentUserFunc(user *identity.User) func(context.Context) (*identity.User, error) {
	return func(ctx context.Context) (*identity.User, error) {
		if user == nil {
			return nil, fmt.Errorf("no authenticated user in context")
		}
		return user, nil
	}
}

type testEnv struct {
	router    http.Handler
	mem       *storememory.Driver
	faulty    *storetest.Faulty
	publisher *recordingPublisher
}

func newTestEnv(user *identity.User) *testEnv {
	return newTestEnvWithDefault(user, events.DefaultNotifyBefore)
}

func newTestEnvWithDefault(user *identity.User, notifyBefore int) *testEnv {
	mem := storememory.New()
	faulty := storetest.NewFaulty(mem, nil)
	friendList := friends.New(mem, testLogger)
	for _, id := range []string{"u2", "r1", "r2", "r3"} {
		friendList.Put(context.Background(), alice.ID, id, id)
	}
	wf := events.NewWorkflow(faulty, notifications.NewOutbox(faulty, testLogger), friendList, nil,
		events.NewSweeper(faulty, nil, testLogger), testLogger)
	pub := &recordingPublisher{}
	h := apievents.NewHandler(wf, pub, notifyBefore, currentUserFunc(user), testLogger)

	r := chi.NewRouter()
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", h.HandleListUpcoming)
		r.Post("/", h.HandleCreate)
		r.Get("/concluded", h.HandleListConcluded)
		r.Get("/export.ics", h.HandleExportICS)
		r.Get("/{eventId}", h.HandleGet)
		r.Put("/{eventId}", h.HandleUpdate)
		r.Delete("/{eventId}", h.HandleDelete)
		r.Post("/{eventId}/conclude", h.HandleConclude)
	})
	return &testEnv{router: r, mem: mem, faulty: faulty, publisher: pub}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func eventBody(title string, date time.Time, sharedWith ...string) string {
	b, _ := json.Marshal(map[string]any{"title": title, "date": date, "sharedWith": sharedWith})
	return string(b)
}

func TestCreateAndList(t *testing.T) {
	env := newTestEnv(alice)
	date := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	w := env.do(http.MethodPost, "/api/events/", eventBody("Picnic", date, "u2"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var saved apievents.SaveResponse
	json.Unmarshal(w.Body.Bytes(), &saved)
	if saved.EventID == "" || len(saved.Failed) != 0 {
		t.Fatalf("unexpected response %+v", saved)
	}

	if msgs := env.publisher.sent["u2"]; len(msgs) != 1 || msgs[0].Kind != push.KindInbox {
		t.Errorf("expected an inbox push to u2, got %+v", msgs)
	}

	w = env.do(http.MethodGet, "/api/events/", "")
	var list apievents.ListResponse
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Events) != 1 || list.Events[0].NotifyBefore != events.DefaultNotifyBefore || !list.Events[0].Date.Equal(date) {
		t.Fatalf("unexpected list %+v", list)
	}

	w = env.do(http.MethodGet, "/api/events/"+saved.EventID, "")
	if w.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", w.Code)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	env := newTestEnv(alice)
	body := eventBody("Standup", time.Now().Add(time.Hour).UTC())

	env.do(http.MethodPost, "/api/events/", body)
	w := env.do(http.MethodPost, "/api/events/", body)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var envelope api.ErrorEnvelope
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope.Error.ReasonCode != api.ReasonDuplicateEvent {
		t.Errorf("expected duplicate_event, got %q", envelope.Error.ReasonCode)
	}
}

func TestCreate_PartialFanOut(t *testing.T) {
	env := newTestEnv(alice)
	env.faulty.Fail = storetest.FailWrites("r2", store.CollectionNotifications)

	w := env.do(http.MethodPost, "/api/events/", eventBody("Party", time.Now().Add(time.Hour).UTC(), "r1", "r2", "r3"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for partial fan-out, got %d: %s", w.Code, w.Body.String())
	}
	var saved apievents.SaveResponse
	json.Unmarshal(w.Body.Bytes(), &saved)
	if len(saved.Failed) != 1 || saved.Failed[0].RecipientID != "r2" || saved.Failed[0].Error != api.ReasonUnavailable {
		t.Errorf("unexpected failed list %+v", saved.Failed)
	}
	if strings.Contains(w.Body.String(), "injected") {
		t.Errorf("backend detail leaked: %s", w.Body.String())
	}
}

func TestCreate_ConfiguredNotifyDefault(t *testing.T) {
	env := newTestEnvWithDefault(alice, 30)

	w := env.do(http.MethodPost, "/api/events/", eventBody("Dentist", time.Now().Add(time.Hour).UTC()))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/events/", "")
	var list apievents.ListResponse
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Events) != 1 || list.Events[0].NotifyBefore != 30 {
		t.Fatalf("expected the configured default of 30, got %+v", list)
	}
}

func TestCreate_NonFriendRecipient(t *testing.T) {
	env := newTestEnv(alice)

	w := env.do(http.MethodPost, "/api/events/", eventBody("Party", time.Now().Add(time.Hour).UTC(), "u2", "mallory"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when a recipient is rejected, got %d: %s", w.Code, w.Body.String())
	}
	var saved apievents.SaveResponse
	json.Unmarshal(w.Body.Bytes(), &saved)
	if len(saved.Failed) != 1 || saved.Failed[0].RecipientID != "mallory" || saved.Failed[0].Error != api.ReasonNotFriend {
		t.Errorf("unexpected failed list %+v", saved.Failed)
	}
	if len(env.publisher.sent["mallory"]) != 0 {
		t.Errorf("non-friend should not be notified")
	}
	if len(env.publisher.sent["u2"]) != 1 {
		t.Errorf("expected u2 to be notified, got %+v", env.publisher.sent["u2"])
	}
}

func TestCreate_Invalid(t *testing.T) {
	env := newTestEnv(alice)
	for _, body := range []string{
		`{"title":"","date":"2030-01-01T10:00:00Z"}`,
		`{"title":"No date"}`,
		`{"title":"Bad","date":"2030-01-01T10:00:00Z","notifyBefore":-1}`,
	} {
		if w := env.do(http.MethodPost, "/api/events/", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestUpdateConcludeDelete(t *testing.T) {
	env := newTestEnv(alice)
	w := env.do(http.MethodPost, "/api/events/", eventBody("Dinner", time.Now().Add(time.Hour).UTC()))
	var saved apievents.SaveResponse
	json.Unmarshal(w.Body.Bytes(), &saved)
	path := "/api/events/" + saved.EventID

	if w := env.do(http.MethodPut, path, eventBody("Late dinner", time.Now().Add(2*time.Hour).UTC())); w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodPut, "/api/events/missing", eventBody("X", time.Now().UTC())); w.Code != http.StatusNotFound {
		t.Errorf("update missing: expected 404, got %d", w.Code)
	}

	if w := env.do(http.MethodPost, path+"/conclude", ""); w.Code != http.StatusNoContent {
		t.Fatalf("conclude: expected 204, got %d", w.Code)
	}
	w = env.do(http.MethodGet, "/api/events/concluded", "")
	var list apievents.ListResponse
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Events) != 1 || list.Events[0].Title != "Late dinner" {
		t.Errorf("expected the concluded event, got %+v", list.Events)
	}

	for i := 0; i < 2; i++ {
		if w := env.do(http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
			t.Fatalf("delete #%d: expected 204, got %d", i+1, w.Code)
		}
	}
	if w := env.do(http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestList_StoreUnavailable(t *testing.T) {
	env := newTestEnv(alice)
	env.faulty.Fail = func(storetest.Call) error { return store.ErrClosed }

	if w := env.do(http.MethodGet, "/api/events/", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestExportICS(t *testing.T) {
	env := newTestEnv(alice)
	env.do(http.MethodPost, "/api/events/", eventBody("Picnic", time.Now().Add(time.Hour).UTC()))

	w := env.do(http.MethodGet, "/api/events/export.ics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), "SUMMARY:Picnic") {
		t.Errorf("export missing event: %s", w.Body.String())
	}
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(nil)
	if w := env.do(http.MethodGet, "/api/events/", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
