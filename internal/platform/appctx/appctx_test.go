package appctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestWithLogger_And_LoggerFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	ctx := WithLogger(context.Background(), logger)

	got, ok := LoggerFromContext(ctx)
	if !ok {
		t.Fatal("Expected LoggerFromContext to return true")
	}
	if got != logger {
		t.Error("Expected same logger instance")
	}
}

func TestLoggerFromContext_NilLogger(t *testing.T) {
	ctx := context.WithValue(context.Background(), loggerKey{}, (*slog.Logger)(nil))

	if _, ok := LoggerFromContext(ctx); ok {
		t.Error("Expected LoggerFromContext to return false for nil logger")
	}
	if GetLogger(ctx) != slog.Default() {
		t.Error("Expected GetLogger to fall back to slog.Default()")
	}
}

func TestUserID(t *testing.T) {
	ctx := context.Background()
	if got := UserID(ctx); got != "" {
		t.Errorf("expected empty user id, got %q", got)
	}

	ctx = WithUserID(ctx, "u1")
	if got := UserID(ctx); got != "u1" {
		t.Errorf("expected u1, got %q", got)
	}
}
