package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/model"
)

// Paths locates the external directories a run works against.
type Paths struct {
	// Repo is the repository holding the study sources.
	Repo string
	// Dest is the destination run directory.
	Dest string
}

// Loader parses study definition files into model.Study values.
type Loader struct {
	paths Paths
}

// New creates a study file loader.
func New(paths Paths) *Loader {
	return &Loader{paths: paths}
}

// hclRoot is the top-level structure of a study file for decoding.
type hclRoot struct {
	Studies []*hclStudy `hcl:"study,block"`
}

// hclStudy defers case decoding so each case body can be evaluated against
// a study-scoped evaluation context.
type hclStudy struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type hclStudyBody struct {
	Path  string     `hcl:"path,optional"`
	Cases []*hclCase `hcl:"case,block"`
}

type hclCase struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type hclCaseBody struct {
	Tags        []string `hcl:"tags,optional"`
	Level       int      `hcl:"level,optional"`
	NProcs      int      `hcl:"n_procs,optional"`
	DependsOn   []string `hcl:"depends_on,optional"`
	Command     string   `hcl:"command"`
	WallTime    string   `hcl:"wall_time,optional"`
	MaxDuration string   `hcl:"max_duration,optional"`
	Tolerance   float64  `hcl:"tolerance,optional"`
}

// Load discovers every .hcl file under path (a single file or a directory),
// decodes the study blocks found in them, and validates the resulting case
// set. Case ids must be unique across all loaded studies and every
// depends_on reference must resolve.
func (l *Loader) Load(ctx context.Context, path string) ([]*model.Study, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findStudyFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl study files found in %s", path)
	}
	logger.Debug("Discovered study files.", "count", len(files))

	parser := hclparse.NewParser()
	var studies []*model.Study
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse study file %s: %w", file, diags)
		}

		var root hclRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode study file %s: %w", file, diags)
		}

		for _, rawStudy := range root.Studies {
			study, err := l.translateStudy(ctx, rawStudy)
			if err != nil {
				return nil, fmt.Errorf("study %q in %s: %w", rawStudy.Name, file, err)
			}
			studies = append(studies, study)
		}
	}

	if err := validate(studies); err != nil {
		return nil, err
	}
	logger.Info("Studies loaded.", "studies", len(studies), "cases", len(model.CaseIndex(studies)))
	return studies, nil
}

// translateStudy decodes one study block and all of its cases.
func (l *Loader) translateStudy(ctx context.Context, raw *hclStudy) (*model.Study, error) {
	var body hclStudyBody
	if diags := gohcl.DecodeBody(raw.Body, l.evalContext(raw.Name, raw.Name), &body); diags.HasErrors() {
		return nil, diags
	}

	studyPath := body.Path
	if studyPath == "" {
		studyPath = raw.Name
	}

	study := &model.Study{Name: raw.Name, Path: studyPath}
	evalCtx := l.evalContext(raw.Name, studyPath)
	for _, rawCase := range body.Cases {
		c, err := translateCase(study, rawCase, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", rawCase.Name, err)
		}
		study.Cases = append(study.Cases, c)
	}
	return study, nil
}

// translateCase decodes one case body and applies defaults.
func translateCase(study *model.Study, raw *hclCase, evalCtx *hcl.EvalContext) (*model.Case, error) {
	var body hclCaseBody
	if diags := gohcl.DecodeBody(raw.Body, evalCtx, &body); diags.HasErrors() {
		return nil, diags
	}

	if body.Level < 0 {
		return nil, fmt.Errorf("level must be >= 0, got %d", body.Level)
	}
	if body.NProcs < 0 {
		return nil, fmt.Errorf("n_procs must be >= 0, got %d", body.NProcs)
	}
	if body.NProcs == 0 {
		body.NProcs = 1
	}

	wallTime, err := parseDuration(body.WallTime, defaultWallTime)
	if err != nil {
		return nil, fmt.Errorf("wall_time: %w", err)
	}
	maxDuration, err := parseDuration(body.MaxDuration, 0)
	if err != nil {
		return nil, fmt.Errorf("max_duration: %w", err)
	}

	return &model.Case{
		Name:              raw.Name,
		Study:             study.Name,
		Tags:              body.Tags,
		Level:             body.Level,
		NProcs:            body.NProcs,
		DependsOn:         body.DependsOn,
		Command:           body.Command,
		EstimatedWallTime: wallTime,
		MaxDuration:       maxDuration,
		CompareTolerance:  body.Tolerance,
	}, nil
}

// defaultWallTime is assumed for cases that declare no estimate, so the
// planner's wall-time budget always has something to count.
const defaultWallTime = 15 * time.Minute

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

// evalContext exposes the study and run directories to case attribute
// expressions.
func (l *Loader) evalContext(studyName, studyPath string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"study": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(studyName),
				"path": cty.StringVal(studyPath),
			}),
			"paths": cty.ObjectVal(map[string]cty.Value{
				"repo": cty.StringVal(l.paths.Repo),
				"dest": cty.StringVal(l.paths.Dest),
			}),
		},
	}
}

// validate enforces cross-study invariants: unique ids and resolvable
// explicit dependencies.
func validate(studies []*model.Study) error {
	seen := make(map[string]struct{})
	for _, s := range studies {
		for _, c := range s.Cases {
			if _, dup := seen[c.ID()]; dup {
				return &DuplicateCaseError{ID: c.ID()}
			}
			seen[c.ID()] = struct{}{}
		}
	}
	for _, s := range studies {
		for _, c := range s.Cases {
			for _, ref := range c.DependsOn {
				if _, ok := seen[ref]; !ok {
					return &UnknownDependencyError{CaseID: c.ID(), Ref: ref}
				}
			}
		}
	}
	return nil
}

// findStudyFiles returns all .hcl files reachable from path, which may be a
// single file or a directory walked recursively.
func findStudyFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}

	if !info.IsDir() {
		if filepath.Ext(path) != ".hcl" {
			return nil, fmt.Errorf("study file %s is not an .hcl file", path)
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(p) == ".hcl" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
