// Package planner packs the filtered, topologically ordered case list into
// batches bounded by case count and estimated wall time.
//
// Batches are consumed strictly in sequence, which is what makes the greedy
// fill dependency-safe: a prerequisite always lands in the same batch as its
// dependent or an earlier one, and batch N+1 never starts before batch N is
// fully terminal.
package planner

import (
	"context"
	"time"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/model"
)

// Batch is one submission unit: an ordered slice of cases plus its
// aggregate wall-time estimate.
type Batch struct {
	Index             int
	Cases             []*model.Case
	EstimatedWallTime time.Duration
}

// Size returns the number of cases in the batch.
func (b *Batch) Size() int {
	return len(b.Cases)
}

// TotalProcs returns the summed processor request of the batch, used to
// build the cluster submission request.
func (b *Batch) TotalProcs() int {
	total := 0
	for _, c := range b.Cases {
		total += c.NProcs
	}
	return total
}

// Plan is the frozen execution plan for one run. It is never mutated after
// construction.
type Plan struct {
	Batches []*Batch
}

// Build walks the ordered case list and greedily fills batches. A case is
// appended to the current batch unless that would exceed the size cap or
// the wall-time budget; then the batch is closed and a new one started. A
// single case whose own estimate exceeds the budget forms a singleton
// batch. A sizeCap of zero means unbounded; likewise a zero budget.
func Build(ctx context.Context, ordered []*model.Case, sizeCap int, wallTimeBudget time.Duration) *Plan {
	logger := ctxlog.FromContext(ctx)

	plan := &Plan{}
	var current *Batch
	for _, c := range ordered {
		if current != nil && !fits(current, c, sizeCap, wallTimeBudget) {
			plan.Batches = append(plan.Batches, current)
			current = nil
		}
		if current == nil {
			current = &Batch{Index: len(plan.Batches)}
		}
		current.Cases = append(current.Cases, c)
		current.EstimatedWallTime += c.EstimatedWallTime
	}
	if current != nil {
		plan.Batches = append(plan.Batches, current)
	}

	logger.Info("Execution plan built.", "cases", len(ordered), "batches", len(plan.Batches))
	return plan
}

// fits reports whether adding the case keeps the batch within both caps.
func fits(b *Batch, c *model.Case, sizeCap int, wallTimeBudget time.Duration) bool {
	if sizeCap > 0 && b.Size()+1 > sizeCap {
		return false
	}
	if wallTimeBudget > 0 && b.EstimatedWallTime+c.EstimatedWallTime > wallTimeBudget {
		return false
	}
	return true
}
