package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	serviceName      = "notify-engine"
	correlationField = "correlationId"
)

type ctxKey int

const correlationKey ctxKey = iota

// NewLogger returns a JSON logger writing to stderr. Every entry carries the
// service name and, when set, the command role (serve, worker, ...).
func NewLogger(level, role string) (*zap.Logger, error) {
	text := strings.ToLower(strings.TrimSpace(level))
	if text == "" {
		text = zapcore.InfoLevel.String()
	}
	atomic, err := zap.ParseAtomicLevel(text)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder

	fields := map[string]any{"service": serviceName}
	if role = strings.TrimSpace(role); role != "" {
		fields["role"] = role
	}

	cfg := zap.Config{
		Level:             atomic,
		Encoding:          "json",
		EncoderConfig:     encoder,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		InitialFields:     fields,
		Sampling:          &zap.SamplingConfig{Initial: 100, Thereafter: 100},
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// WithCorrelationID stores id on ctx. Blank ids leave ctx unchanged.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if id = strings.TrimSpace(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, id)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, _ := ctx.Value(correlationKey).(string)
	return id, id != ""
}

// WithContextLogger tags logger with the correlation id carried by ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		return logger.With(zap.String(correlationField, id))
	}
	return logger
}
