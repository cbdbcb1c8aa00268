// Package report turns an aggregated run summary into a renderable report
// document. It is a pure transform: no file, mail, or plotting I/O happens
// here. External renderers consume the YAML form of the Document.
package report

import (
	"sort"
	"time"

	"github.com/vk/studymanager/internal/aggregate"
	"github.com/vk/studymanager/internal/model"
)

// Meta carries run-level facts the orchestrator knows and the summary does
// not.
type Meta struct {
	Started  time.Time `yaml:"started"`
	Finished time.Time `yaml:"finished"`
	Host     string    `yaml:"host"`
	Repo     string    `yaml:"repository"`
	Dest     string    `yaml:"destination"`
}

// Document is the complete, renderer-agnostic report for one run.
type Document struct {
	Meta     Meta           `yaml:"run"`
	Total    int            `yaml:"total_cases"`
	Counts   map[string]int `yaml:"counts"`
	Studies  []StudyReport  `yaml:"studies"`
	Tags     []TagReport    `yaml:"tags,omitempty"`
	Failures []CaseFailure  `yaml:"failures,omitempty"`
	// FirstFailure identifies the failure that decided a non-zero exit.
	FirstFailure string `yaml:"first_failure,omitempty"`
	Succeeded    bool   `yaml:"succeeded"`
}

// StudyReport tallies one study.
type StudyReport struct {
	Study  string         `yaml:"study"`
	Counts map[string]int `yaml:"counts"`
}

// TagReport tallies one tag.
type TagReport struct {
	Tag    string         `yaml:"tag"`
	Counts map[string]int `yaml:"counts"`
}

// CaseFailure describes one non-successful case.
type CaseFailure struct {
	Case   string `yaml:"case"`
	Status string `yaml:"status"`
	Reason string `yaml:"reason,omitempty"`
}

// Build assembles the document from the aggregator's summary and records.
// Study and tag sections are sorted so the document is stable across runs.
func Build(agg *aggregate.Aggregator, meta Meta, firstFailure error) *Document {
	summary := agg.Summary()

	doc := &Document{
		Meta:      meta,
		Total:     summary.Total,
		Counts:    summary.Counts,
		Succeeded: summary.Succeeded(),
	}
	if firstFailure != nil {
		doc.FirstFailure = firstFailure.Error()
	}

	for _, study := range sortedKeys(summary.ByStudy) {
		doc.Studies = append(doc.Studies, StudyReport{Study: study, Counts: summary.ByStudy[study]})
	}
	for _, tag := range sortedKeys(summary.ByTag) {
		doc.Tags = append(doc.Tags, TagReport{Tag: tag, Counts: summary.ByTag[tag]})
	}

	for _, r := range agg.Records() {
		switch r.Status {
		case model.StatusFailed, model.StatusMismatch, model.StatusSkipped:
			failure := CaseFailure{Case: r.ID, Status: r.Status.String()}
			if r.Result != nil {
				failure.Reason = r.Result.Err
			}
			doc.Failures = append(doc.Failures, failure)
		}
	}
	return doc
}

func sortedKeys(m map[string]aggregate.Counts) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
