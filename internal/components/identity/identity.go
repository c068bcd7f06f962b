// Package identity provides users, password authentication, sessions and
// per-user settings.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/cache"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already in use")
	ErrInvalidPassword = errors.New("invalid password")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SystemOwner owns the users collection.
const SystemOwner = "_system"

const (
	friendIDMin      = 1000000
	friendIDSpan     = 9000000
	friendIDAttempts = 10
)

// Theme is the user's color scheme.
type Theme struct {
	Background string `json:"background" mapstructure:"background"`
	Text       string `json:"text" mapstructure:"text"`
	Icon       string `json:"icon" mapstructure:"icon"`
	Mode       string `json:"mode" mapstructure:"mode"`
}

// DefaultTheme is applied at registration and by a settings reset.
func DefaultTheme() Theme {
	return Theme{Background: "#fff", Text: "#000", Icon: "#800080", Mode: "light"}
}

// User is a registered account.
type User struct {
	ID           string    `json:"id" mapstructure:"-"`
	Email        string    `json:"email" mapstructure:"email"`
	PasswordHash string    `json:"-" mapstructure:"passwordHash"`
	FullName     string    `json:"fullName" mapstructure:"fullName"`
	FriendID     string    `json:"friendID" mapstructure:"friendID"`
	ProfileImage string    `json:"profileImage" mapstructure:"profileImage"`
	Theme        Theme     `json:"theme" mapstructure:"theme"`
	Language     string    `json:"language" mapstructure:"language"`
	Fonts        string    `json:"fonts" mapstructure:"fonts"`
	CreatedAt    time.Time `json:"createdAt" mapstructure:"-"`
}

func (u *User) document() store.Document {
	return store.Document{
		"email":        u.Email,
		"passwordHash": u.PasswordHash,
		"fullName":     u.FullName,
		"friendID":     u.FriendID,
		"profileImage": u.ProfileImage,
		"theme": map[string]any{
			"background": u.Theme.Background,
			"text":       u.Theme.Text,
			"icon":       u.Theme.Icon,
			"mode":       u.Theme.Mode,
		},
		"language":  u.Language,
		"fonts":     u.Fonts,
		"createdAt": store.Timestamp(u.CreatedAt),
	}
}

func userFromSnapshot(id string, doc store.Document) (*User, error) {
	u := &User{ID: id}
	if err := store.DecodeInto(doc, u); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	if created, ok := store.TimeFrom(doc["createdAt"]); ok {
		u.CreatedAt = created
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Directory is the store-backed user repository. Email and friend id
// lookups go through a cache index in front of a collection scan.
type Directory struct {
	store store.DocumentStore
	cache cache.Cache
	log   *slog.Logger

	// serializes uniqueness checks in Create
	mu sync.Mutex
}

// NewDirectory creates a Directory. c may be nil to disable the index cache.
func NewDirectory(st store.DocumentStore, c cache.Cache, log *slog.Logger) *Directory {
	log = logutil.NoopIfNil(log)
	return &Directory{store: st, cache: c, log: log}
}

// Create registers u, assigning id, friend id, creation time and default
// settings. Returns ErrEmailExists if the email is taken.
func (d *Directory) Create(ctx context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u.Email = normalizeEmail(u.Email)

	users, err := d.all(ctx)
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(users))
	for _, existing := range users {
		if existing.Email == u.Email {
			return ErrEmailExists
		}
		taken[existing.FriendID] = true
	}

	friendID, err := newFriendID(taken)
	if err != nil {
		return err
	}

	u.ID = store.NewID()
	u.FriendID = friendID
	u.CreatedAt = time.Now().UTC()
	if u.Theme == (Theme{}) {
		u.Theme = DefaultTheme()
	}
	if u.Language == "" {
		u.Language = DefaultLanguage
	}
	if u.Fonts == "" {
		u.Fonts = DefaultFont
	}

	if err := d.store.CreateWithID(ctx, SystemOwner, store.CollectionUsers, u.ID, u.document()); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	d.remember(ctx, emailKey(u.Email), u.ID)
	d.remember(ctx, friendIDKey(u.FriendID), u.ID)
	d.log.Info("user registered", "user_id", u.ID, "friend_id", u.FriendID)
	return nil
}

// Get returns the user with the given id.
func (d *Directory) Get(ctx context.Context, id string) (*User, error) {
	doc, err := d.store.Get(ctx, SystemOwner, store.CollectionUsers, id)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return userFromSnapshot(id, doc)
}

// ByEmail looks a user up by email (case-insensitive, trimmed).
func (d *Directory) ByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}
	return d.lookup(ctx, emailKey(email), func(u *User) bool { return u.Email == email })
}

// ByFriendID looks a user up by the public 7-digit friend id.
func (d *Directory) ByFriendID(ctx context.Context, friendID string) (*User, error) {
	friendID = strings.TrimSpace(friendID)
	if friendID == "" {
		return nil, ErrUserNotFound
	}
	return d.lookup(ctx, friendIDKey(friendID), func(u *User) bool { return u.FriendID == friendID })
}

// UpdateSettings validates and applies patch, returning the updated user.
func (d *Directory) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (*User, error) {
	changes, err := patch.Document()
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		err = d.store.Update(ctx, SystemOwner, store.CollectionUsers, id, changes)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("update settings: %w", err)
		}
	}
	return d.Get(ctx, id)
}

func (d *Directory) lookup(ctx context.Context, key string, match func(*User) bool) (*User, error) {
	if d.cache != nil {
		if id, err := d.cache.Get(ctx, key); err == nil {
			u, err := d.Get(ctx, string(id))
			if err == nil && match(u) {
				return u, nil
			}
			// stale index entry
			d.cache.Delete(ctx, key)
		}
	}

	users, err := d.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			d.remember(ctx, key, u.ID)
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (d *Directory) all(ctx context.Context) ([]*User, error) {
	snaps, err := d.store.List(ctx, SystemOwner, store.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]*User, 0, len(snaps))
	for _, s := range snaps {
		u, err := userFromSnapshot(s.ID, s.Data)
		if err != nil {
			d.log.Warn("skipping unreadable user record", "user_id", s.ID, "error", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (d *Directory) remember(ctx context.Context, key, userID string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Set(ctx, key, []byte(userID), cache.TTLDirectory); err != nil {
		d.log.Debug("directory cache write failed", "key", key, "error", err)
	}
}

func emailKey(email string) string       { return "identity:email:" + email }
func friendIDKey(friendID string) string { return "identity:friendid:" + friendID }

// newFriendID draws a random 7-digit id not present in taken.
func newFriendID(taken map[string]bool) (string, error) {
	for i := 0; i < friendIDAttempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(friendIDSpan))
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%d", friendIDMin+n.Int64())
		if !taken[id] {
			return id, nil
		}
	}
	return "", errors.New("could not allocate a unique friend id")
}
