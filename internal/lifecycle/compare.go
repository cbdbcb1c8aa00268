package lifecycle

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/studymanager/internal/model"
)

// CompareDirs walks the reference directory and diffs each file against its
// counterpart in the run directory. Numeric tokens are compared by relative
// deviation; non-numeric tokens must match exactly. A missing counterpart
// file is an error, not a mismatch: it means the run is incomplete.
func CompareDirs(ctx context.Context, refDir, runDir string, tolerance float64) (*model.CompareSummary, error) {
	summary := &model.CompareSummary{Tolerance: tolerance}

	err := filepath.Walk(refDir, func(refPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(refDir, refPath)
		if err != nil {
			return err
		}
		runPath := filepath.Join(runDir, rel)
		if _, err := os.Stat(runPath); err != nil {
			return fmt.Errorf("result file %s missing from run directory: %w", rel, err)
		}

		deviation, err := compareFiles(refPath, runPath)
		if err != nil {
			return fmt.Errorf("comparing %s: %w", rel, err)
		}
		if deviation > summary.MaxDeviation {
			summary.MaxDeviation = deviation
		}
		if deviation > tolerance {
			summary.Fields = append(summary.Fields, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// compareFiles returns the largest relative deviation between the numeric
// tokens of two files. Token count or non-numeric token disagreement is
// reported as a full deviation of 1.
func compareFiles(refPath, runPath string) (float64, error) {
	refTokens, err := readTokens(refPath)
	if err != nil {
		return 0, err
	}
	runTokens, err := readTokens(runPath)
	if err != nil {
		return 0, err
	}
	if len(refTokens) != len(runTokens) {
		return 1, nil
	}

	maxDev := 0.0
	for i, refTok := range refTokens {
		runTok := runTokens[i]
		refVal, refNum := parseFloat(refTok)
		runVal, runNum := parseFloat(runTok)
		switch {
		case refNum && runNum:
			maxDev = math.Max(maxDev, relativeDeviation(refVal, runVal))
		case refTok != runTok:
			return 1, nil
		}
	}
	return maxDev, nil
}

func relativeDeviation(ref, run float64) float64 {
	diff := math.Abs(ref - run)
	if diff == 0 {
		return 0
	}
	scale := math.Max(math.Abs(ref), math.Abs(run))
	if scale == 0 {
		return 0
	}
	return diff / scale
}

func parseFloat(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(tok, 64)
	return v, err == nil
}

func readTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		tokens = append(tokens, strings.Fields(scanner.Text())...)
	}
	return tokens, scanner.Err()
}
