package pushws_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api/pushws"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/components/push"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func TestHandleWS_DeliversToSessionUser(t *testing.T) {
	hub := push.NewHub(testLogger)
	defer hub.Close()

	h := pushws.NewHandler(hub, func(context.Context) (*identity.User, error) {
		return &identity.User{ID: "u1"}, nil
	}, testLogger)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("expected greeting: %v", err)
	}

	if err := hub.Publish(context.Background(), "u1", push.Message{Kind: push.KindInbox, Title: "Bob sent you an invite"}); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg push.Message
	json.Unmarshal(data, &msg)
	if msg.Kind != push.KindInbox {
		t.Errorf("expected inbox push, got %+v", msg)
	}
}

func TestHandleWS_Unauthenticated(t *testing.T) {
	hub := push.NewHub(nil)
	h := pushws.NewHandler(hub, func(context.Context) (*identity.User, error) {
		return nil, errors.New("no user")
	}, nil)

	w := httptest.NewRecorder()
	h.HandleWS(w, httptest.NewRequest(http.MethodGet, "/api/push/ws", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
