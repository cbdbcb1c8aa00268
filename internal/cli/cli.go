// Package cli parses command-line arguments into an app configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vk/studymanager/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("studymanager", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
studymanager - validation suite orchestrator.

Usage:
  studymanager [options] [STUDY_PATH]

Arguments:
  STUDY_PATH
    Path to a single .hcl study file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	fileFlag := flagSet.String("file", "", "Path to the study file or directory.")
	fFlag := flagSet.String("f", "", "Path to the study file or directory (shorthand).")
	repoFlag := flagSet.String("repo", "", "Force path to the repository directory.")
	destFlag := flagSet.String("dest", "", "Force path to the destination run directory.")
	refFlag := flagSet.String("ref-dir", "", "Reference directory to compare results with.")
	compareFlag := flagSet.Bool("compare", false, "Compare results against the reference directory.")
	withTagsFlag := flagSet.String("with-tags", "", "Only process cases with one of the given tags (comma separated).")
	withoutTagsFlag := flagSet.String("without-tags", "", "Exclude cases with one of the given tags (comma separated).")
	levelFlag := flagSet.Int("filter-level", -1, "Only process cases at the given dependency level. -1 disables the filter.")
	nProcsFlag := flagSet.Int("filter-n-procs", -1, "Only process cases using the given number of procs. -1 disables the filter.")
	overrideProcsFlag := flagSet.Int("n-procs", 0, "Override the processor count of every case. 0 keeps per-case settings.")
	batchSizeFlag := flagSet.Int("batch-size", 0, "Number of cases per batch. 0 means a single unbounded batch.")
	batchWTimeFlag := flagSet.Int("batch-wtime", 3, "Wall time budget per batch, in hours.")
	workersFlag := flagSet.Int("workers", 0, "Local worker pool size. 0 means one worker per CPU.")
	modeFlag := flagSet.String("mode", "local", "Execution mode. Options: 'local' or 'cluster'.")
	graceFlag := flagSet.Duration("grace-period", 30*time.Second, "Delay between termination signal and forced kill.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *fileFlag != "" {
		path = *fileFlag
	} else if *fFlag != "" {
		path = *fFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		StudyPath:       path,
		RepoPath:        *repoFlag,
		DestPath:        *destFlag,
		RefPath:         *refFlag,
		Compare:         *compareFlag,
		TagsInclude:     splitTags(*withTagsFlag),
		TagsExclude:     splitTags(*withoutTagsFlag),
		FilterLevel:     optionalInt(*levelFlag),
		FilterNProcs:    optionalInt(*nProcsFlag),
		NProcs:          *overrideProcsFlag,
		BatchSize:       *batchSizeFlag,
		BatchWTimeHours: *batchWTimeFlag,
		Workers:         *workersFlag,
		Mode:            strings.ToLower(*modeFlag),
		GracePeriod:     *graceFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}

// splitTags turns a comma separated tag list into a slice, dropping empty
// entries.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// optionalInt maps the -1 sentinel to "no bound".
func optionalInt(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}
