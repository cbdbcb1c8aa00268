package app

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Execution modes.
const (
	ModeLocal   = "local"
	ModeCluster = "cluster"
)

// Config enumerates every recognized option for one orchestrator run.
type Config struct {
	// StudyPath is the study definition file or directory (.hcl).
	StudyPath string
	// RepoPath is the repository holding study sources.
	RepoPath string
	// DestPath is the destination run directory.
	DestPath string
	// RefPath is the reference results directory used by comparison.
	RefPath string

	// TagsInclude restricts the run to cases carrying one of these tags.
	TagsInclude []string
	// TagsExclude drops cases carrying any of these tags.
	TagsExclude []string
	// FilterLevel, when non-nil, restricts the run to one level.
	FilterLevel *int
	// FilterNProcs, when non-nil, restricts the run to one proc count.
	FilterNProcs *int

	// NProcs, when non-zero, overrides the processor count of every case.
	NProcs int

	// BatchSize caps cases per batch; 0 disables batching and the whole
	// selection runs as one batch.
	BatchSize int
	// BatchWTimeHours is the wall-time budget per batch, in hours.
	BatchWTimeHours int
	// Workers sizes the local worker pool; 0 means one per CPU.
	Workers int
	// Mode selects local or cluster execution.
	Mode string
	// Compare enables the comparison phase against RefPath.
	Compare bool
	// GracePeriod is the window between the termination signal and the
	// forced kill on timeout or abort.
	GracePeriod time.Duration
	// PollInterval is the cluster adapter polling cadence.
	PollInterval time.Duration

	LogFormat string
	LogLevel  string
}

// NewConfig validates a config and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.StudyPath == "" {
		return nil, errors.New("a study definition path is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLocal
	}
	if cfg.Mode != ModeLocal && cfg.Mode != ModeCluster {
		return nil, fmt.Errorf("invalid mode %q: must be %q or %q", cfg.Mode, ModeLocal, ModeCluster)
	}
	if cfg.Compare && cfg.RefPath == "" {
		return nil, errors.New("comparison requested but no reference directory given")
	}
	if cfg.NProcs < 0 {
		return nil, fmt.Errorf("n-procs must be >= 0, got %d", cfg.NProcs)
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must be >= 0, got %d", cfg.BatchSize)
	}
	if cfg.BatchWTimeHours <= 0 {
		cfg.BatchWTimeHours = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.DestPath == "" {
		cfg.DestPath = "."
	}
	return &cfg, nil
}

// BatchWallTime returns the per-batch wall-time budget as a duration.
func (c *Config) BatchWallTime() time.Duration {
	return time.Duration(c.BatchWTimeHours) * time.Hour
}
