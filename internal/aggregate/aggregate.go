// Package aggregate collects terminal case outcomes into a queryable run
// summary.
//
// Aggregation is idempotent: records are keyed by case id, so replaying a
// completed run's records produces the same summary with no double
// counting and no dependence on call order.
package aggregate

import (
	"fmt"
	"sync"

	"github.com/vk/studymanager/internal/model"
)

// Record is the archived terminal outcome of one case.
type Record struct {
	ID     string
	Study  string
	Tags   []string
	Status model.Status
	Result *model.RunResult
}

// Aggregator accumulates terminal records for one run.
type Aggregator struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{records: make(map[string]*Record)}
}

// Add captures a case's terminal outcome and advances it to REPORTED.
// Re-adding an already captured case is a no-op as long as its outcome is
// unchanged; a diverging outcome for the same id is rejected because a
// RunResult is immutable within one run.
func (a *Aggregator) Add(c *model.Case) error {
	status := c.Status()
	if !status.Terminal() {
		return fmt.Errorf("case %s is not terminal (status %s)", c.ID(), status)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.records[c.ID()]; ok {
		if status != model.StatusReported && existing.Status != status {
			return fmt.Errorf("case %s re-recorded with conflicting status %s (was %s)",
				c.ID(), status, existing.Status)
		}
		return nil
	}

	a.records[c.ID()] = &Record{
		ID:     c.ID(),
		Study:  c.Study,
		Tags:   c.Tags,
		Status: status,
		Result: c.Result(),
	}
	a.order = append(a.order, c.ID())

	// REPORTED marks the hand-off; the archived record keeps the real
	// terminal status.
	_ = c.Advance(model.StatusReported)
	return nil
}

// Records returns the archived records in capture order.
func (a *Aggregator) Records() []*Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Record, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.records[id])
	}
	return out
}

// Counts holds per-status tallies.
type Counts map[string]int

// Summary is the aggregated outcome of a run.
type Summary struct {
	Total   int
	Counts  Counts
	ByStudy map[string]Counts
	ByTag   map[string]Counts
}

// Summary computes the aggregated view. Calling it twice over the same
// records yields identical output.
func (a *Aggregator) Summary() *Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &Summary{
		Counts:  make(Counts),
		ByStudy: make(map[string]Counts),
		ByTag:   make(map[string]Counts),
	}
	for _, id := range a.order {
		r := a.records[id]
		name := r.Status.String()
		s.Total++
		s.Counts[name]++
		if s.ByStudy[r.Study] == nil {
			s.ByStudy[r.Study] = make(Counts)
		}
		s.ByStudy[r.Study][name]++
		for _, tag := range r.Tags {
			if s.ByTag[tag] == nil {
				s.ByTag[tag] = make(Counts)
			}
			s.ByTag[tag][name]++
		}
	}
	return s
}

// Succeeded reports whether every recorded non-skipped case ended
// COMPLETED or MATCH. This drives the process exit code.
func (s *Summary) Succeeded() bool {
	for name, n := range s.Counts {
		if n == 0 {
			continue
		}
		switch name {
		case model.StatusCompleted.String(), model.StatusMatch.String(), model.StatusSkipped.String():
		default:
			return false
		}
	}
	return true
}
