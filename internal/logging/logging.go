// Package logging configures the process-wide structured logger. Log setup
// is itself an out-of-scope external collaborator per the orchestrator's
// spec, but the ambient stack still follows the teacher's slog conventions:
// debug mode logs text to stdout, otherwise JSON to a rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. In debug mode it writes human-readable
// text to stdout at Debug level; otherwise it writes JSON to a
// lumberjack-rotated file at logFilePath, at Info level.
func New(debug bool, logFilePath string) *slog.Logger {
	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		var w io.Writer = &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}
