package runtime

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/loqalabs/voicenav/internal/config"
)

// NewLogger builds the process logger from telemetry settings: JSON lines by
// default, colored text for log_format "text".
func NewLogger(cfg config.TelemetryConfig, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
