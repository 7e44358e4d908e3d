package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTradeID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trade ID set
	if id := TradeID(ctx); id != "" {
		t.Errorf("expected empty trade id, got %q", id)
	}

	// Set and retrieve
	ctx = WithTradeID(ctx, "trade-123")
	if id := TradeID(ctx); id != "trade-123" {
		t.Errorf("expected 'trade-123', got %q", id)
	}
}

func TestLogWithTrade(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithTrade(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no trade id, got %v", attrs)
	}

	ctx = WithTradeID(ctx, "abc-123")
	if attrs := LogWithTrade(ctx); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with trade id set")
	}
}
