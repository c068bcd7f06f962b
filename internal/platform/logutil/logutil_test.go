package logutil

import (
	"log/slog"
	"testing"
)

func TestNoopIfNil(t *testing.T) {
	if NoopIfNil(nil) != Noop() {
		t.Error("expected discard logger for nil")
	}
	l := slog.Default()
	if NoopIfNil(l) != l {
		t.Error("expected the given logger back")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
