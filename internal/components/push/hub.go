package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	// Clients are mobile apps, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks live websocket connections per user.
type Hub struct {
	mu    sync.RWMutex
	users map[string][]*client
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	log = logutil.NoopIfNil(log)
	return &Hub{users: make(map[string][]*client), log: log}
}

func (h *Hub) add(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[userID] = append(h.users[userID], c)
	metrics.PushConnections.Inc()
}

func (h *Hub) remove(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.users[userID]
	for i, existing := range conns {
		if existing == c {
			h.users[userID] = append(conns[:i], conns[i+1:]...)
			metrics.PushConnections.Dec()
			break
		}
	}
	if len(h.users[userID]) == 0 {
		delete(h.users, userID)
	}
}

// Connections returns the number of live connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Publish implements Publisher for clients connected to this process.
func (h *Hub) Publish(ctx context.Context, userID string, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.deliver(userID, data)
	return nil
}

func (h *Hub) deliver(userID string, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.users[userID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.log.Debug("push write failed", "user_id", userID, "error", err)
		}
	}
}

// ServeWS upgrades the request and holds the connection for userID until
// the client goes away. Incoming frames are read and discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	h.add(userID, c)
	defer h.remove(userID, c)

	hello, _ := json.Marshal(Message{Kind: KindConnected, SentAt: time.Now().UTC()})
	if err := c.write(hello); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close drops every connection.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.users {
		for _, c := range conns {
			c.conn.Close()
		}
		metrics.PushConnections.Sub(float64(len(conns)))
		delete(h.users, userID)
	}
	return nil
}

var _ Publisher = (*Hub)(nil)
