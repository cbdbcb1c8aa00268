package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/studymanager/internal/executor"
	"github.com/vk/studymanager/internal/filter"
	"github.com/vk/studymanager/internal/graph"
	"github.com/vk/studymanager/internal/model"
	"github.com/vk/studymanager/internal/planner"
)

// fakeExec resolves every queued case of a batch to a scripted terminal
// status, standing in for both executor variants.
type fakeExec struct {
	outcomes  map[string]model.Status
	submitted []int
}

type fakeHandle struct{ batch *planner.Batch }

func (h *fakeHandle) BatchIndex() int { return h.batch.Index }

func (f *fakeExec) Submit(ctx context.Context, batch *planner.Batch) (executor.Handle, error) {
	f.submitted = append(f.submitted, batch.Index)
	return &fakeHandle{batch: batch}, nil
}

func (f *fakeExec) Wait(ctx context.Context, h executor.Handle) (map[string]model.Status, error) {
	batch := h.(*fakeHandle).batch
	statuses := make(map[string]model.Status, batch.Size())
	for _, c := range batch.Cases {
		if c.Status() == model.StatusQueued {
			f.resolve(c)
		}
		statuses[c.ID()] = c.Status()
	}
	return statuses, ctx.Err()
}

func (f *fakeExec) resolve(c *model.Case) {
	_ = c.Advance(model.StatusRunning)
	switch f.outcomes[c.ID()] {
	case model.StatusFailed:
		c.SetResult(&model.RunResult{ExitCode: 1, Err: "solver exited with code 1"})
		_ = c.Advance(model.StatusFailed)
	case model.StatusMismatch:
		_ = c.Advance(model.StatusCompleted)
		_ = c.Advance(model.StatusCompared)
		c.SetResult(&model.RunResult{
			Artifacts: []string{"results.csv"},
			Diff:      &model.CompareSummary{MaxDeviation: 0.4, Tolerance: 1e-8},
		})
		_ = c.Advance(model.StatusMismatch)
	default:
		c.SetResult(&model.RunResult{Artifacts: []string{"results.csv"}})
		_ = c.Advance(model.StatusCompleted)
	}
}

// plan builds a study graph from the cases and slices them into batches of
// the given sizes, in declaration order.
func plan(t *testing.T, cases []*model.Case, sizes ...int) (*graph.Graph, *planner.Plan) {
	t.Helper()
	s := &model.Study{Name: "S", Path: "S"}
	for _, c := range cases {
		c.Study = "S"
		s.Cases = append(s.Cases, c)
	}
	g, err := graph.Build([]*model.Study{s})
	require.NoError(t, err)

	p := &planner.Plan{}
	next := 0
	for i, size := range sizes {
		p.Batches = append(p.Batches, &planner.Batch{Index: i, Cases: cases[next : next+size]})
		next += size
	}
	require.Equal(t, len(cases), next, "batch sizes must cover all cases")
	return g, p
}

func TestCoordinatorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("batches run strictly in sequence", func(t *testing.T) {
		exec := &fakeExec{}
		cases := []*model.Case{{Name: "a"}, {Name: "b"}, {Name: "c"}}
		g, p := plan(t, cases, 1, 1, 1)

		err := New(g, p, filter.Selection{}, exec).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, exec.submitted)
		for _, c := range cases {
			assert.Equal(t, model.StatusCompleted, c.Status(), c.ID())
		}
	})

	t.Run("failed prerequisite gates the later batch", func(t *testing.T) {
		exec := &fakeExec{outcomes: map[string]model.Status{"S/a": model.StatusFailed}}
		cases := []*model.Case{
			{Name: "a"},
			{Name: "b", DependsOn: []string{"S/a"}},
			{Name: "c"},
		}
		g, p := plan(t, cases, 1, 2)

		err := New(g, p, filter.Selection{}, exec).Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S/a")

		assert.Equal(t, model.StatusFailed, cases[0].Status())
		assert.Equal(t, model.StatusSkipped, cases[1].Status())
		assert.Equal(t, model.StatusCompleted, cases[2].Status())
		require.NotNil(t, cases[1].Result())
		assert.Contains(t, cases[1].Result().Err, "prerequisite S/a")
	})

	t.Run("relaxed prerequisite does not gate", func(t *testing.T) {
		exec := &fakeExec{}
		a := &model.Case{Name: "a"}
		b := &model.Case{Name: "b", DependsOn: []string{"S/a"}}
		// The graph holds both cases; the filter kept only b.
		s := &model.Study{Name: "S", Path: "S"}
		a.Study, b.Study = "S", "S"
		s.Cases = []*model.Case{a, b}
		g, err := graph.Build([]*model.Study{s})
		require.NoError(t, err)
		p := &planner.Plan{Batches: []*planner.Batch{{Index: 0, Cases: []*model.Case{b}}}}
		sel := filter.Selection{Cases: []*model.Case{b}, Relaxed: map[string]bool{"S/a": true}}

		require.NoError(t, New(g, p, sel, exec).Run(ctx))
		assert.Equal(t, model.StatusCompleted, b.Status())
		assert.Equal(t, model.StatusPending, a.Status())
	})

	t.Run("mismatch is reported but does not block dependents", func(t *testing.T) {
		exec := &fakeExec{outcomes: map[string]model.Status{"S/a": model.StatusMismatch}}
		cases := []*model.Case{
			{Name: "a"},
			{Name: "b", DependsOn: []string{"S/a"}},
		}
		g, p := plan(t, cases, 1, 1)

		err := New(g, p, filter.Selection{}, exec).Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S/a")
		assert.Equal(t, model.StatusMismatch, cases[0].Status())
		assert.Equal(t, model.StatusCompleted, cases[1].Status())
	})

	t.Run("first failure wins", func(t *testing.T) {
		exec := &fakeExec{outcomes: map[string]model.Status{
			"S/a": model.StatusFailed,
			"S/b": model.StatusFailed,
		}}
		cases := []*model.Case{{Name: "a"}, {Name: "b"}}
		g, p := plan(t, cases, 1, 1)

		err := New(g, p, filter.Selection{}, exec).Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S/a")
		assert.NotContains(t, err.Error(), "S/b")
	})

	t.Run("abort skips everything not yet terminal", func(t *testing.T) {
		exec := &fakeExec{}
		cases := []*model.Case{{Name: "a"}, {Name: "b"}}
		g, p := plan(t, cases, 1, 1)

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		err := New(g, p, filter.Selection{}, exec).Run(canceled)
		require.NoError(t, err)
		assert.Empty(t, exec.submitted)
		for _, c := range cases {
			assert.Equal(t, model.StatusSkipped, c.Status(), c.ID())
			assert.Contains(t, c.Result().Err, "run aborted")
		}
	})
}
