package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestBestEffort(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	bestEffort(context.Background(), log, "ok", func(context.Context) error { return nil })
	if buf.Len() != 0 {
		t.Fatalf("expected nothing logged for success, got %q", buf.String())
	}

	bestEffort(context.Background(), log, "cache_write", func(context.Context) error { return errors.New("redis down") })
	if !strings.Contains(buf.String(), "best_effort_failed") || !strings.Contains(buf.String(), "cache_write") {
		t.Fatalf("expected failure to be logged, got %q", buf.String())
	}

	buf.Reset()
	bestEffort(context.Background(), log, "usage_record", func(context.Context) error { panic("boom") })
	if !strings.Contains(buf.String(), "best_effort_panic") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}
