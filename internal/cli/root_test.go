package cli

import (
	"log/slog"
	"testing"

	"github.com/cruciblehq/kiln/internal/logging"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		debug, quiet bool
		want         slog.Level
	}{
		{false, false, slog.LevelInfo},
		{false, true, slog.LevelWarn},
		{true, false, slog.LevelDebug},
		{true, true, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := logLevel(tt.debug, tt.quiet); got != tt.want {
			t.Errorf("logLevel(%v, %v) = %v, want %v", tt.debug, tt.quiet, got, tt.want)
		}
	}
}

func TestLogFormatter(t *testing.T) {
	tests := []struct {
		format string
		tty    bool
		plain  bool
	}{
		{"auto", true, false},
		{"auto", false, true},
		{"pretty", false, false},
		{"plain", true, true},
	}
	for _, tt := range tests {
		_, plain := logFormatter(tt.format, tt.tty, false).(*logging.PlainFormatter)
		if plain != tt.plain {
			t.Errorf("logFormatter(%q, tty=%v) plain = %v, want %v", tt.format, tt.tty, plain, tt.plain)
		}
	}
}

func TestSocketPathOverride(t *testing.T) {
	old := RootCmd.Socket
	t.Cleanup(func() { RootCmd.Socket = old })

	RootCmd.Socket = "/tmp/kiln-test.sock"
	if got := socketPath(); got != "/tmp/kiln-test.sock" {
		t.Fatalf("socketPath() = %q", got)
	}
}
