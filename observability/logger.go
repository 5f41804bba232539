package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a JSON logger in production and a text logger elsewhere.
func NewLogger(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if env == "prod" || env == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
