package tokencount

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCountFallsBackToEstimateOnUnknownEncoding(t *testing.T) {
	c := New("no-such-encoding", testLogger())

	text := "twelve bytes"
	if got := c.Count(text); got != len(text)/4 {
		t.Fatalf("Count(%q) = %d, want estimate %d", text, got, len(text)/4)
	}
}

func TestCountEmptyText(t *testing.T) {
	c := New("no-such-encoding", testLogger())
	if got := c.Count(""); got != 0 {
		t.Fatalf("empty text must count 0 tokens, got %d", got)
	}
}

func TestEstimateNeverReturnsZeroForText(t *testing.T) {
	if got := estimate("ok"); got != 1 {
		t.Fatalf("short text must still cost a token, got %d", got)
	}
}
