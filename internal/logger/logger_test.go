package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWriter_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "scanner", slog.LevelInfo)
	l.Info("hello", slog.Int("n", 1))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v (%s)", err, buf.String())
	}
	if line["service"] != "scanner" || line["msg"] != "hello" {
		t.Errorf("unexpected line: %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCycle_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if c := CycleID(ctx); c != 0 {
		t.Errorf("expected 0, got %d", c)
	}
	ctx = WithCycle(ctx, 42)
	if c := CycleID(ctx); c != 42 {
		t.Errorf("expected 42, got %d", c)
	}
}

func TestAttrs(t *testing.T) {
	if attrs := Attrs(context.Background()); attrs != nil {
		t.Errorf("expected nil attrs, got %v", attrs)
	}

	ctx := WithSymbol(WithCycle(context.Background(), 7), "ABCUSDT")
	if attrs := Attrs(ctx); len(attrs) != 2 {
		t.Fatalf("expected 2 attrs, got %v", attrs)
	}
}
