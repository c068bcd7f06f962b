package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

const routingPrefix = "user."

// AMQPConfig configures the broker transport.
type AMQPConfig struct {
	URL      string
	Exchange string

	// Queue is this instance's queue. Empty declares a server-named exclusive
	// queue, so every instance receives every push.
	Queue string
}

// envelope is the wire format on the exchange.
type envelope struct {
	UserID  string  `json:"userId"`
	Message Message `json:"message"`
}

// AMQPTransport publishes pushes to a topic exchange keyed by user and
// feeds everything bound to this instance's queue into the local hub.
type AMQPTransport struct {
	cfg AMQPConfig
	hub *Hub
	log *slog.Logger

	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(cfg AMQPConfig, hub *Hub, log *slog.Logger) (*AMQPTransport, error) {
	log = logutil.NoopIfNil(log)
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	return &AMQPTransport{cfg: cfg, hub: hub, log: log, conn: conn, ch: ch}, nil
}

// Publish implements Publisher.
func (t *AMQPTransport) Publish(ctx context.Context, userID string, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	body, err := encodeEnvelope(userID, msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch.PublishWithContext(ctx,
		t.cfg.Exchange,
		routingPrefix+userID,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Start binds this instance's queue and delivers messages to the hub until
// ctx is done or the channel closes.
func (t *AMQPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	q, err := t.declareQueue()
	if err == nil {
		err = t.ch.QueueBind(q.Name, routingPrefix+"*", t.cfg.Exchange, false, nil)
	}
	var msgs <-chan amqp.Delivery
	if err == nil {
		msgs, err = t.ch.Consume(q.Name, "", true, false, false, false, nil)
	}
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to start push consumer: %w", err)
	}

	t.log.Info("push consumer started", "exchange", t.cfg.Exchange, "queue", q.Name)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					t.log.Warn("push consumer channel closed")
					return
				}
				userID, data, err := decodeEnvelope(d.Body)
				if err != nil {
					t.log.Warn("dropping malformed push message", "error", err)
					continue
				}
				t.hub.deliver(userID, data)
			}
		}
	}()
	return nil
}

func (t *AMQPTransport) declareQueue() (amqp.Queue, error) {
	if t.cfg.Queue == "" {
		return t.ch.QueueDeclare("", false, true, true, false, nil)
	}
	return t.ch.QueueDeclare(t.cfg.Queue, true, false, false, false, nil)
}

// Close closes the channel and connection.
func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	chErr := t.ch.Close()
	return errors.Join(chErr, t.conn.Close())
}

func encodeEnvelope(userID string, msg Message) ([]byte, error) {
	if userID == "" || strings.ContainsAny(userID, ".*#") {
		return nil, fmt.Errorf("invalid push user id %q", userID)
	}
	return json.Marshal(envelope{UserID: userID, Message: msg})
}

// decodeEnvelope returns the recipient and the client-facing JSON.
func decodeEnvelope(body []byte) (string, []byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, err
	}
	if env.UserID == "" {
		return "", nil, errors.New("push message without user id")
	}
	data, err := json.Marshal(env.Message)
	if err != nil {
		return "", nil, err
	}
	return env.UserID, data, nil
}

var _ Publisher = (*AMQPTransport)(nil)
