// Package logger sets up the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Init installs a JSON logger on stdout as the process default.
func Init(level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, level)
}

func InitWriter(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
