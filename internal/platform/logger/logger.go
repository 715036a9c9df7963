// Package logger builds the node's structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"rotrust/internal/platform/config"
)

// New returns a slog logger writing to stdout and, when configured, to a
// size-rotated file.
func New(cfg config.Log) *slog.Logger {
	return slog.New(NewHandler(cfg, os.Stdout))
}

// NewHandler builds the handler for cfg over stdout. The returned handler
// also writes to cfg.File when set.
func NewHandler(cfg config.Log, stdout io.Writer) slog.Handler {
	w := stdout
	if cfg.File != "" {
		w = io.MultiWriter(stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
