package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	cachememory "github.com/MahdiBaghbani/calshare-go/internal/platform/cache/memory"
)

func TestUserAuth_HashAndVerify(t *testing.T) {
	auth := identity.NewUserAuthFast()

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected PHC argon2id hash, got %q", hash)
	}
	if err := auth.VerifyPassword(hash, "correct horse"); err != nil {
		t.Errorf("VerifyPassword failed: %v", err)
	}
	if err := auth.VerifyPassword(hash, "wrong"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
	if err := auth.VerifyPassword("garbage", "x"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword for malformed hash, got %v", err)
	}
}

func TestUserAuth_RegisterAndAuthenticate(t *testing.T) {
	dir, _, _ := newDirectory(t)
	auth := identity.NewUserAuthFast()
	ctx := context.Background()

	user, err := auth.Register(ctx, dir, "dave@example.com", "secret1", " Dave ")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.FullName != "Dave" {
		t.Errorf("expected trimmed name, got %q", user.FullName)
	}

	got, err := auth.Authenticate(ctx, dir, "DAVE@example.com", "secret1")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("authenticated wrong user %s", got.ID)
	}

	if _, err := auth.Authenticate(ctx, dir, "dave@example.com", "nope"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
	if _, err := auth.Authenticate(ctx, dir, "ghost@example.com", "secret1"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("unknown email must look like a bad password, got %v", err)
	}
}

func TestUserAuth_RegisterValidation(t *testing.T) {
	dir, _, _ := newDirectory(t)
	auth := identity.NewUserAuthFast()
	ctx := context.Background()

	for _, email := range []string{"no-at-sign", "  @example.com", "@example.com", "erin@  ", "erin@"} {
		if _, err := auth.Register(ctx, dir, email, "secret1", "X"); !errors.Is(err, identity.ErrInvalidEmail) {
			t.Errorf("Register(%q): expected ErrInvalidEmail, got %v", email, err)
		}
	}
	user, err := auth.Register(ctx, dir, "  erin@example.com  ", "secret1", "Erin")
	if err != nil {
		t.Fatalf("surrounding whitespace should be accepted: %v", err)
	}
	if user.Email != "erin@example.com" {
		t.Errorf("expected trimmed email, got %q", user.Email)
	}
	if _, err := auth.Register(ctx, dir, "x@example.com", "123", "X"); !errors.Is(err, identity.ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
}

func TestSessions(t *testing.T) {
	c := cachememory.New(time.Minute, time.Minute)
	defer c.Close()
	sessions := identity.NewSessions(c, time.Hour)
	ctx := context.Background()

	sess, err := sessions.Create(ctx, "user-123")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(sess.Token) < 40 {
		t.Errorf("token looks too short: %q", sess.Token)
	}

	got, err := sessions.Get(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "user-123" {
		t.Errorf("expected user-123, got %q", got.UserID)
	}

	if err := sessions.Delete(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Get(ctx, sess.Token); !errors.Is(err, identity.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestSessions_Expiry(t *testing.T) {
	c := cachememory.New(time.Minute, time.Minute)
	defer c.Close()
	sessions := identity.NewSessions(c, 5*time.Millisecond)
	ctx := context.Background()

	sess, err := sessions.Create(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	_, err = sessions.Get(ctx, sess.Token)
	if !errors.Is(err, identity.ErrSessionNotFound) && !errors.Is(err, identity.ErrSessionExpired) {
		t.Errorf("expected expired session to be rejected, got %v", err)
	}
}
