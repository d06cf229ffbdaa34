package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/keyward-dev/keyward/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init initializes the global slog logger from the log configuration.
// When cfg.File is set, records are also written to a size-rotated file.
func Init(cfg config.LogConfig) {
	slog.SetDefault(slog.New(NewHandler(cfg, Output(cfg))))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Output returns stdout, or stdout plus a rotating file writer.
func Output(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})
}

// NewHandler builds a text or JSON handler writing to w.
func NewHandler(cfg config.LogConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: true,
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		// Default to text for development
		return slog.NewTextHandler(w, opts)
	}
}
