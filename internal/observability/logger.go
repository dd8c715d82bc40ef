package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/querymind/querymind/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// DefaultServiceName labels log lines from a config that names no service.
const DefaultServiceName = "querymind"

// NewLogger builds the process logger. Attributes named password, api_key or
// token are redacted.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: redactSecrets}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	service := cfg.Service.Name
	if service == "" {
		service = DefaultServiceName
	}
	return slog.New(handler).With(
		slog.String("service", service),
		slog.String("profile", string(cfg.Profile)),
	)
}

var secretKeys = map[string]bool{
	"password": true,
	"api_key":  true,
	"apikey":   true,
	"token":    true,
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	if secretKeys[attr.Key] && attr.Value.String() != "" {
		return slog.String(attr.Key, "[redacted]")
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
