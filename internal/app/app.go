// Package app wires the orchestrator together: configuration, logging,
// study loading, planning, execution and reporting for one run.
package app

import (
	"io"
	"log/slog"

	"github.com/vk/studymanager/internal/executor"
	"github.com/vk/studymanager/internal/loader"
)

// App encapsulates the orchestrator's dependencies, configuration, and
// lifecycle. Its lifetime equals one orchestrator run.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	loader  *loader.Loader
	adapter executor.SubmissionAdapter
}

// NewApp constructs the application with its own isolated logger. The
// report document is written to outW and diagnostics to logW; the two
// streams must stay separate so the document remains machine-readable. The
// submission adapter is only consulted in cluster mode and may be nil for
// local runs.
func NewApp(outW, logW io.Writer, cfg *Config, adapter executor.SubmissionAdapter) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		loader: loader.New(loader.Paths{
			Repo: cfg.RepoPath,
			Dest: cfg.DestPath,
		}),
		adapter: adapter,
	}
}
