package account_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/api/account"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	cachememory "github.com/MahdiBaghbani/calshare-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/auth"
	storememory "github.com/MahdiBaghbani/calshare-go/internal/platform/store/memory"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

type testEnv struct {
	router   http.Handler
	dir      *identity.Directory
	sessions *identity.Sessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c := cachememory.New(time.Minute, time.Minute)
	dir := identity.NewDirectory(storememory.New(), c, testLogger)
	sessions := identity.NewSessions(c, time.Hour)
	h := account.NewHandler(dir, identity.NewUserAuthFast(), sessions, false, auth.CurrentUser, testLogger)

	r := chi.NewRouter()
	r.Post("/api/auth/register", h.HandleRegister)
	r.Post("/api/auth/login", h.HandleLogin)
	r.Post("/api/auth/logout", h.HandleLogout)
	r.Group(func(r chi.Router) {
		r.Use(auth.NewAuthGate(auth.AuthGateConfig{
			RequireAuth: func(string) bool { return true },
			Sessions:    sessions,
			Users:       dir,
		}))
		r.Get("/api/me", h.HandleGetMe)
		r.Patch("/api/me", h.HandlePatchMe)
	})
	return &testEnv{router: r, dir: dir, sessions: sessions}
}

func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func reasonOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env api.ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("not an error envelope: %s", w.Body.String())
	}
	return env.Error.ReasonCode
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/auth/register", `{"email":"Alice@Example.com","password":"hunter22","fullName":"Alice"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "passwordHash") || strings.Contains(w.Body.String(), "argon2") {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}
	var registered identity.User
	json.Unmarshal(w.Body.Bytes(), &registered)
	if len(registered.FriendID) != 7 || registered.Language != "en" {
		t.Errorf("unexpected defaults %+v", registered)
	}

	w = env.do(http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"hunter22"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	var login account.LoginResponse
	json.Unmarshal(w.Body.Bytes(), &login)
	if login.Token != cookie.Value || login.User.ID != registered.ID {
		t.Errorf("unexpected login response %+v", login)
	}

	w = env.do(http.MethodGet, "/api/me", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	var me identity.User
	json.Unmarshal(w.Body.Bytes(), &me)
	if me.ID != registered.ID || me.FullName != "Alice" {
		t.Errorf("unexpected profile %+v", me)
	}

	w = env.do(http.MethodPost, "/api/auth/logout", "", cookie)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", w.Code)
	}
	if w = env.do(http.MethodGet, "/api/me", "", cookie); w.Code != http.StatusUnauthorized {
		t.Errorf("session must be gone after logout, got %d", w.Code)
	}
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/auth/register", `{"email":"a@example.com","password":"hunter22","fullName":"A"}`)

	tests := []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{"duplicate email", `{"email":"A@example.com","password":"hunter22","fullName":"B"}`, http.StatusConflict, api.ReasonConflict},
		{"weak password", `{"email":"b@example.com","password":"123","fullName":"B"}`, http.StatusBadRequest, api.ReasonInvalidField},
		{"bad email", `{"email":"nobody","password":"hunter22","fullName":"B"}`, http.StatusBadRequest, api.ReasonInvalidField},
		{"no name", `{"email":"c@example.com","password":"hunter22"}`, http.StatusBadRequest, api.ReasonMissingField},
		{"bad json", `{`, http.StatusBadRequest, api.ReasonBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/auth/register", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if got := reasonOf(t, w); got != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, got)
			}
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/auth/register", `{"email":"a@example.com","password":"hunter22","fullName":"A"}`)

	for _, body := range []string{
		`{"email":"a@example.com","password":"wrong-password"}`,
		`{"email":"ghost@example.com","password":"hunter22"}`,
	} {
		w := env.do(http.MethodPost, "/api/auth/login", body)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if got := reasonOf(t, w); got != api.ReasonInvalidCredentials {
			t.Errorf("expected invalid_credentials, got %q", got)
		}
	}
}

func TestPatchMe(t *testing.T) {
	env := newTestEnv(t)
	user := &identity.User{Email: "bob@example.com", FullName: "Bob"}
	if err := env.dir.Create(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	sess, _ := env.sessions.Create(context.Background(), user.ID)
	cookie := &http.Cookie{Name: auth.SessionCookie, Value: sess.Token}

	w := env.do(http.MethodPatch, "/api/me", `{"language":"es-MX","theme":{"background":"#000","text":"#fff","icon":"#0f0","mode":"dark"}}`, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated identity.User
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Language != "es" || updated.Theme.Mode != "dark" {
		t.Errorf("settings not applied: %+v", updated)
	}

	w = env.do(http.MethodPatch, "/api/me", `{"resetAppearance":true}`, cookie)
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Theme != identity.DefaultTheme() || updated.Fonts != identity.DefaultFont {
		t.Errorf("appearance not reset: %+v", updated)
	}

	w = env.do(http.MethodPatch, "/api/me", `{"language":"fr"}`, cookie)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported language: expected 400, got %d", w.Code)
	}
}
