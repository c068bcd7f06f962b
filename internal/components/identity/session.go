package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/cache"
)

// Session is a login session, addressed by an opaque token.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Sessions keeps sessions in the cache so every instance sharing the cache
// sees the same logins.
type Sessions struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewSessions creates a session store with the given lifetime.
func NewSessions(c cache.Cache, ttl time.Duration) *Sessions {
	return &Sessions{cache: c, ttl: ttl}
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Create starts a session for userID.
func (s *Sessions) Create(ctx context.Context, userID string) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, sessionKey(token), data, s.ttl); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Get returns the session for token, ErrSessionNotFound or ErrSessionExpired.
func (s *Sessions) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.cache.Get(ctx, sessionKey(token))
	if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrExpired) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, ErrSessionNotFound
	}
	if sess.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

// Delete ends the session. Unknown tokens are ignored.
func (s *Sessions) Delete(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, sessionKey(token))
}

func sessionKey(token string) string { return "session:" + token }

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
