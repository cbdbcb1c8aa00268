package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/graph"
	"github.com/vk/studymanager/internal/lifecycle"
	"github.com/vk/studymanager/internal/model"
	"github.com/vk/studymanager/internal/planner"
)

// Local executes batches with a bounded worker pool. Within a batch, a case
// is handed to a worker only once its intra-batch prerequisites reached a
// satisfying state; cross-batch ordering is the coordinator's concern.
type Local struct {
	driver  *lifecycle.Driver
	graph   *graph.Graph
	workers int
}

// NewLocal creates a local executor with the given pool size.
func NewLocal(driver *lifecycle.Driver, g *graph.Graph, workers int) *Local {
	if workers < 1 {
		workers = 1
	}
	return &Local{driver: driver, graph: g, workers: workers}
}

// localUnit wraps one case with its intra-batch scheduling state.
type localUnit struct {
	c *model.Case
	// remaining counts unmet intra-batch prerequisites. A failed or
	// skipped prerequisite never decrements it; such units are accounted
	// through the skip propagation instead.
	remaining atomic.Int32
	// dependents are the batch-local cases waiting on this one.
	dependents []*localUnit
	// doneOnce guarantees the unit is counted in the batch WaitGroup
	// exactly once, whether it ran, was skipped, or was drained.
	doneOnce sync.Once
}

type localHandle struct {
	batch *planner.Batch
	done  chan struct{}
}

func (h *localHandle) BatchIndex() int { return h.batch.Index }

// Submit starts the batch on the worker pool and returns immediately.
func (l *Local) Submit(ctx context.Context, batch *planner.Batch) (Handle, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Submitting batch to local pool.",
		"batch", batch.Index, "cases", batch.Size(), "workers", l.workers)

	units := make(map[string]*localUnit, batch.Size())
	for _, c := range batch.Cases {
		units[c.ID()] = &localUnit{c: c}
	}
	for id, unit := range units {
		for _, depID := range l.graph.Dependencies(id) {
			if dep, inBatch := units[depID]; inBatch {
				unit.remaining.Add(1)
				dep.dependents = append(dep.dependents, unit)
			}
		}
	}

	readyChan := make(chan *localUnit, batch.Size())
	for _, c := range batch.Cases {
		if unit := units[c.ID()]; unit.remaining.Load() == 0 {
			readyChan <- unit
		}
	}

	var wg sync.WaitGroup
	wg.Add(batch.Size())
	for i := 0; i < l.workers; i++ {
		go l.worker(ctx, readyChan, &wg, i)
	}

	h := &localHandle{batch: batch, done: make(chan struct{})}
	go func() {
		wg.Wait()
		close(readyChan)
		close(h.done)
	}()
	return h, nil
}

// Wait blocks until the batch drained. On cancellation the workers still
// resolve every unit (running cases are terminated by the runner, waiting
// ones are skipped), so done always closes.
func (l *Local) Wait(ctx context.Context, h Handle) (map[string]model.Status, error) {
	lh, ok := h.(*localHandle)
	if !ok {
		return nil, fmt.Errorf("handle %T was not produced by the local executor", h)
	}

	<-lh.done

	statuses := make(map[string]model.Status, lh.batch.Size())
	for _, c := range lh.batch.Cases {
		statuses[c.ID()] = c.Status()
	}
	return statuses, ctx.Err()
}

// worker is the core processing loop for a single concurrent worker.
func (l *Local) worker(ctx context.Context, readyChan chan *localUnit, wg *sync.WaitGroup, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for unit := range readyChan {
		workerLogger := logger.With("workerID", workerID, "case", unit.c.ID())

		if unit.c.Status() == model.StatusSkipped {
			// Resolved before reaching a worker, either by skip propagation
			// or by the coordinator's cross-batch gating. A skipped
			// prerequisite blocks, so its dependents are skipped too.
			l.skipDependents(ctx, unit, wg)
			unit.doneOnce.Do(wg.Done)
			continue
		}

		if ctx.Err() != nil {
			workerLogger.Warn("Run aborted, skipping case.")
			unit.c.Skip(fmt.Errorf("run aborted: %w", ctx.Err()))
			l.skipDependents(ctx, unit, wg)
			unit.doneOnce.Do(wg.Done)
			continue
		}

		workerLogger.Debug("Worker picked up case.")
		err := l.driver.Execute(ctx, unit.c)

		if unit.c.Status().Satisfies() {
			if err != nil {
				// Mismatch: recorded, non-fatal, does not block dependents.
				workerLogger.Warn("Case finished with a recorded mismatch.", "error", err)
			}
			for _, dependent := range unit.dependents {
				if dependent.remaining.Add(-1) == 0 {
					workerLogger.Debug("Unlocking dependent case.", "dependent", dependent.c.ID())
					readyChan <- dependent
				}
			}
		} else {
			workerLogger.Error("Case failed; blocking its dependents.", "error", err)
			l.skipDependents(ctx, unit, wg)
		}
		unit.doneOnce.Do(wg.Done)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// skipDependents marks the unit's in-batch transitive dependents SKIPPED
// and accounts them, exactly once each. Dependents in later batches are
// handled by the coordinator's gating.
func (l *Local) skipDependents(ctx context.Context, unit *localUnit, wg *sync.WaitGroup) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range unit.dependents {
		dependent.doneOnce.Do(func() {
			logger.Warn("Skipping dependent case.",
				"case", dependent.c.ID(), "prerequisite", unit.c.ID())
			dependent.c.Skip(fmt.Errorf("prerequisite %s did not complete", unit.c.ID()))
			wg.Done()
			l.skipDependents(ctx, dependent, wg)
		})
	}
}
