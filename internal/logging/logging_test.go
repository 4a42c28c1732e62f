package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("stage", "preventive"))

	l.Info(context.Background(), "perimeter optimized", Float64("cost", -12.5), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Unmarshal: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "perimeter optimized" || rec["stage"] != "preventive" || rec["error"] != "boom" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["cost"] != -12.5 {
		t.Fatalf("cost = %v, want -12.5", rec["cost"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	l.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}
	l.Warn(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatalf("warn must be written")
	}
}

func TestWithRunLoggerIsStable(t *testing.T) {
	ctx, _ := WithRunLogger(context.Background(), nil)
	id := RunIDFromContext(ctx)
	if id == "" {
		t.Fatalf("expected a run id")
	}
	ctx2, _ := WithRunLogger(ctx, Noop())
	if got := RunIDFromContext(ctx2); got != id {
		t.Fatalf("run id changed: %q -> %q", id, got)
	}
	if LoggerFromContext(ctx2) == nil {
		t.Fatalf("expected logger on context")
	}
}
