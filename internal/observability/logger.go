package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/cashplan/cashplan/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// redactedAttrs never reach the log output with their value.
var redactedAttrs = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"x-api-key":     {},
	"store_dsn":     {},
}

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		ReplaceAttr: redact,
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func redact(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := redactedAttrs[strings.ToLower(attr.Key)]; ok {
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
