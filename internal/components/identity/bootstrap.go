package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
)

// SeededUser is an account created at startup if its email is not registered yet.
type SeededUser struct {
	Email    string
	Password string
	FullName string
}

// Bootstrap seeds accounts idempotently.
type Bootstrap struct {
	dir  *Directory
	auth *UserAuth
	log  *slog.Logger
}

func NewBootstrap(dir *Directory, auth *UserAuth, log *slog.Logger) *Bootstrap {
	log = logutil.NoopIfNil(log)
	return &Bootstrap{dir: dir, auth: auth, log: log}
}

// Run creates every seeded user that does not exist yet and returns how many were created.
func (b *Bootstrap) Run(ctx context.Context, seeded []SeededUser) (int, error) {
	var created int
	for _, s := range seeded {
		n, err := b.ensureUser(ctx, s)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (b *Bootstrap) ensureUser(ctx context.Context, s SeededUser) (int, error) {
	_, err := b.dir.ByEmail(ctx, s.Email)
	if err == nil {
		b.log.Debug("seeded user already exists", "email", s.Email)
		return 0, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return 0, err
	}

	password := s.Password
	generated := password == ""
	if generated {
		password = generateRandomPassword()
	}

	user, err := b.auth.Register(ctx, b.dir, s.Email, password, s.FullName)
	if err != nil {
		return 0, err
	}

	if generated {
		b.log.Info("seeded user created with auto-generated password",
			"email", user.Email,
			"password", password,
			"user_id", user.ID,
			"friend_id", user.FriendID)
	} else {
		b.log.Info("seeded user created", "email", user.Email, "user_id", user.ID, "friend_id", user.FriendID)
	}
	return 1, nil
}

func generateRandomPassword() string {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(b)
}
