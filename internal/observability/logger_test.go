package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		level        string
		debugEnabled bool
		wantErr      bool
	}{
		{name: "debug", level: "debug", debugEnabled: true},
		{name: "info", level: "INFO"},
		{name: "empty defaults to info", level: " "},
		{name: "unknown level", level: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.level, "worker")
			if tt.wantErr {
				if err == nil || logger != nil {
					t.Fatalf("NewLogger(%q) = %v, %v; want nil logger and error", tt.level, logger, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger(%q) error = %v", tt.level, err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.debugEnabled {
				t.Fatalf("debug enabled = %v, want %v", got, tt.debugEnabled)
			}
		})
	}
}

func TestCorrelationIDFromContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ctx    context.Context
		wantID string
		wantOK bool
	}{
		{name: "set", ctx: WithCorrelationID(context.Background(), "cid-123"), wantID: "cid-123", wantOK: true},
		{name: "trimmed", ctx: WithCorrelationID(context.TODO(), "  cid-456 "), wantID: "cid-456", wantOK: true},
		{name: "blank is ignored", ctx: WithCorrelationID(context.Background(), " ")},
		{name: "missing", ctx: context.Background()},
	}

	for _, tt := range tests {
		id, ok := CorrelationIDFromContext(tt.ctx)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("%s: CorrelationIDFromContext() = %q, %v; want %q, %v", tt.name, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithContextLogger(base, WithCorrelationID(context.Background(), "cid-789")).Info("with correlation")
	WithContextLogger(base, context.Background()).Info("without correlation")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := entries[0].ContextMap()["correlationId"]; got != "cid-789" {
		t.Fatalf("correlationId = %v, want cid-789", got)
	}
	if _, ok := entries[1].ContextMap()["correlationId"]; ok {
		t.Fatal("correlationId should be absent without a context value")
	}

	if WithContextLogger(nil, context.Background()) != nil {
		t.Fatal("nil logger should stay nil")
	}
}
