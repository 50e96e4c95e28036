// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextWithRunID(t *testing.T) {
	tests := []struct {
		name  string
		ctx   context.Context
		runID string
		want  string
	}{
		{
			name:  "nil context",
			ctx:   nil,
			runID: "run-123",
			want:  "run-123",
		},
		{
			name:  "background context",
			ctx:   context.Background(),
			runID: "run-456",
			want:  "run-456",
		},
		{
			name:  "empty run ID",
			ctx:   context.Background(),
			runID: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRunID(tt.ctx, tt.runID)
			if got := RunIDFromContext(ctx); got != tt.want {
				t.Errorf("RunIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextWithClipID(t *testing.T) {
	ctx := ContextWithClipID(context.Background(), "clip-9")
	if got := ClipIDFromContext(ctx); got != "clip-9" {
		t.Errorf("ClipIDFromContext() = %q, want %q", got, "clip-9")
	}
	if got := ClipIDFromContext(context.Background()); got != "" {
		t.Errorf("ClipIDFromContext() on empty context = %q, want empty", got)
	}
	var nilCtx context.Context
	if got := ClipIDFromContext(nilCtx); got != "" {
		t.Errorf("ClipIDFromContext(nil) = %q, want empty", got)
	}
}

func TestWithContextEnrichesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx = ContextWithClipID(ctx, "clip-2")

	enriched := WithContext(ctx, logger)
	enriched.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", entry["run_id"])
	}
	if entry["clip_id"] != "clip-2" {
		t.Errorf("clip_id = %v, want clip-2", entry["clip_id"])
	}
}

func TestWithContextWithoutFieldsReturnsLoggerUnchanged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	unchanged := WithContext(context.Background(), logger)
	unchanged.Info().Msg("plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if _, ok := entry["run_id"]; ok {
		t.Error("run_id should not be present without a run ID in the context")
	}
	if _, ok := entry["clip_id"]; ok {
		t.Error("clip_id should not be present without a clip ID in the context")
	}
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("FromContext returned nil logger")
	}
	if l.GetLevel() == zerolog.Disabled {
		t.Error("fallback logger must not be disabled")
	}
}

func TestFromContextPrefersEmbeddedLogger(t *testing.T) {
	var buf bytes.Buffer
	embedded := zerolog.New(&buf)
	ctx := embedded.WithContext(context.Background())

	fromCtx := FromContext(ctx)
	fromCtx.Info().Str("event", "ctx.embedded").Msg("via context")

	if buf.Len() == 0 {
		t.Fatal("expected the embedded logger to receive the entry")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["event"] != "ctx.embedded" {
		t.Errorf("event = %v, want ctx.embedded", entry["event"])
	}
}
