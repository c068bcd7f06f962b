package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/appctx"
	httpmw "github.com/MahdiBaghbani/calshare-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/realip"
)

// attrHandler keeps the attributes bound with Logger.With.
type attrHandler struct {
	attrs map[string]any
}

func (h *attrHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *attrHandler) Handle(context.Context, slog.Record) error { return nil }
func (h *attrHandler) WithGroup(string) slog.Handler             { return h }
func (h *attrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &attrHandler{attrs: make(map[string]any, len(h.attrs)+len(attrs))}
	for k, v := range h.attrs {
		nh.attrs[k] = v
	}
	for _, a := range attrs {
		nh.attrs[a.Key] = a.Value.Any()
	}
	return nh
}

func captureRequestLogger(t *testing.T, tp *realip.TrustedProxies, req *http.Request) map[string]any {
	t.Helper()
	var captured *attrHandler
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = appctx.GetLogger(r.Context()).Handler().(*attrHandler)
	})
	chain := chimw.RequestID(httpmw.RequestLoggerMiddleware(slog.New(&attrHandler{}), tp)(next))
	chain.ServeHTTP(httptest.NewRecorder(), req)
	if captured == nil {
		t.Fatal("expected a request-scoped logger in the context")
	}
	return captured.attrs
}

func TestRequestLoggerMiddleware_AttachesRequiredFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/inbox/n1/accept?token=secret", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	attrs := captureRequestLogger(t, realip.NewTrustedProxies(nil), req)

	for _, field := range []string{"request_id", "method", "path", "client_ip"} {
		if _, ok := attrs[field]; !ok {
			t.Errorf("missing required field %q", field)
		}
	}
	if attrs["request_id"] == "" {
		t.Error("request_id should not be empty")
	}
	if attrs["method"] != http.MethodPost {
		t.Errorf("method = %v", attrs["method"])
	}
	if attrs["path"] != "/api/inbox/n1/accept" {
		t.Errorf("path must exclude the query string, got %v", attrs["path"])
	}
}

func TestRequestLoggerMiddleware_ClientIPBehindTrustedProxy(t *testing.T) {
	tp := realip.NewTrustedProxies([]string{"10.0.0.0/8"})

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := captureRequestLogger(t, tp, req)["client_ip"]; got != "203.0.113.7" {
		t.Errorf("trusted proxy: expected forwarded ip, got %v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.RemoteAddr = "198.51.100.9:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := captureRequestLogger(t, tp, req)["client_ip"]; got != "198.51.100.9" {
		t.Errorf("untrusted peer: forwarded header must be ignored, got %v", got)
	}
}

func TestRequestLoggerMiddleware_NilBase(t *testing.T) {
	h := httpmw.RequestLoggerMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appctx.GetLogger(r.Context()).Info("no panic")
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
}
