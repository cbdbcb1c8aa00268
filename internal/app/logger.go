package app

import (
	"io"
	"log/slog"
)

// logLevels maps the accepted -log-level values. Unknown values fall back
// to info; the CLI rejects them before they get here.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the run's logger on the diagnostic stream. The report
// document owns stdout, so logging never goes there.
func newLogger(level, format string, logW io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevels[level]}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(logW, opts))
	}
	return slog.New(slog.NewTextHandler(logW, opts))
}
