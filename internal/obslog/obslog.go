// Package obslog builds the process-wide slog.Logger: tint for local
// development, JSON for everything else, both wrapped in a handler
// that stamps every record with the request id carried on its context
// (§6 Configuration: log_level, log_format).
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/taskforge/orchestrator/internal/requestid"
)

// contextHandler enriches every record with request_id before
// delegating to the wrapped handler.
type contextHandler struct {
	inner slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps the §6 log_level values to a slog.Level. Unknown
// input defaults to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "CRITICAL":
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// New builds a *slog.Logger per §6: format "text" uses tint for
// readable local output, "json" uses slog.NewJSONHandler for
// machine-parseable production logs. w defaults to os.Stderr.
func New(format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := ParseLevel(level)

	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		inner = tint.NewHandler(w, &tint.Options{Level: lvl})
	}

	return slog.New(&contextHandler{inner: inner})
}
