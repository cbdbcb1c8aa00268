package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/studymanager/internal/model"
	"github.com/vk/studymanager/internal/planner"
)

// fakeAdapter replays a scripted sequence of poll responses.
type fakeAdapter struct {
	mu        sync.Mutex
	submitErr error
	polls     []map[string]CaseReport
	pollIdx   int
	canceled  bool

	lastRequest *SubmissionRequest
}

func (f *fakeAdapter) Submit(ctx context.Context, req *SubmissionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRequest = req
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-42", nil
}

func (f *fakeAdapter) Poll(ctx context.Context, jobID string) (map[string]CaseReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.polls) == 0 {
		return map[string]CaseReport{}, nil
	}
	reports := f.polls[f.pollIdx]
	if f.pollIdx < len(f.polls)-1 {
		f.pollIdx++
	}
	return reports, nil
}

func (f *fakeAdapter) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = true
	return nil
}

func (f *fakeAdapter) wasCanceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

func queuedBatch(t *testing.T, names ...string) *planner.Batch {
	t.Helper()
	cases := make([]*model.Case, 0, len(names))
	for _, name := range names {
		c := &model.Case{Study: "S", Name: name, NProcs: 2, Command: "run_solver " + name}
		require.NoError(t, c.Advance(model.StatusQueued))
		cases = append(cases, c)
	}
	return &planner.Batch{Index: 0, Cases: cases, EstimatedWallTime: time.Hour}
}

func TestClusterSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("request carries the whole batch", func(t *testing.T) {
		adapter := &fakeAdapter{}
		cl := NewCluster(adapter, time.Millisecond, time.Second)
		batch := queuedBatch(t, "a", "b")

		h, err := cl.Submit(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 0, h.BatchIndex())

		req := adapter.lastRequest
		require.NotNil(t, req)
		assert.Equal(t, []string{"S/a", "S/b"}, req.CaseIDs)
		assert.Equal(t, 4, req.TotalProcs)
		assert.Equal(t, time.Hour, req.WallTime)
		assert.Equal(t, "run_solver a\nrun_solver b", req.Script)
	})

	t.Run("submission failure fails the whole batch", func(t *testing.T) {
		adapter := &fakeAdapter{submitErr: errors.New("scheduler unreachable")}
		cl := NewCluster(adapter, time.Millisecond, time.Second)
		batch := queuedBatch(t, "a", "b")

		_, err := cl.Submit(ctx, batch)

		var infraErr *InfrastructureError
		require.ErrorAs(t, err, &infraErr)
		assert.Equal(t, 0, infraErr.BatchIndex)

		for _, c := range batch.Cases {
			assert.Equal(t, model.StatusFailed, c.Status(), c.ID())
			require.NotNil(t, c.Result())
			assert.Contains(t, c.Result().Err, "scheduler unreachable")
		}
	})
}

func TestClusterWait(t *testing.T) {
	ctx := context.Background()

	t.Run("polls until every case is terminal", func(t *testing.T) {
		adapter := &fakeAdapter{polls: []map[string]CaseReport{
			{
				"S/a": {Status: model.StatusRunning},
			},
			{
				"S/a": {Status: model.StatusCompleted, Artifacts: []string{"results.csv"}},
				"S/b": {Status: model.StatusRunning},
			},
			{
				"S/a": {Status: model.StatusCompleted},
				"S/b": {Status: model.StatusFailed, ExitCode: 9, Err: "diverged", Artifacts: []string{"error.log"}},
			},
		}}
		cl := NewCluster(adapter, time.Millisecond, time.Second)
		batch := queuedBatch(t, "a", "b")

		h, err := cl.Submit(ctx, batch)
		require.NoError(t, err)
		statuses, err := cl.Wait(ctx, h)
		require.NoError(t, err)

		assert.Equal(t, model.StatusCompleted, statuses["S/a"])
		assert.Equal(t, model.StatusFailed, statuses["S/b"])

		a, b := batch.Cases[0], batch.Cases[1]
		require.NotNil(t, a.Result())
		assert.Equal(t, []string{"results.csv"}, a.Result().Artifacts)
		require.NotNil(t, b.Result())
		assert.Equal(t, 9, b.Result().ExitCode)
		assert.Contains(t, b.Result().Err, "diverged")
		assert.Equal(t, []string{"error.log"}, b.Result().Artifacts)
	})

	t.Run("stale poll data cannot regress a terminal case", func(t *testing.T) {
		adapter := &fakeAdapter{polls: []map[string]CaseReport{
			{
				"S/a": {Status: model.StatusCompleted, Artifacts: []string{"out"}},
				"S/b": {Status: model.StatusRunning},
			},
			{
				"S/a": {Status: model.StatusRunning},
				"S/b": {Status: model.StatusCompleted, Artifacts: []string{"out"}},
			},
		}}
		cl := NewCluster(adapter, time.Millisecond, time.Second)
		batch := queuedBatch(t, "a", "b")

		h, err := cl.Submit(ctx, batch)
		require.NoError(t, err)
		statuses, err := cl.Wait(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, statuses["S/a"])
		assert.Equal(t, model.StatusCompleted, statuses["S/b"])
	})

	t.Run("cancellation aborts the job and skips the remainder", func(t *testing.T) {
		adapter := &fakeAdapter{polls: []map[string]CaseReport{
			{"S/a": {Status: model.StatusRunning}},
		}}
		cl := NewCluster(adapter, time.Millisecond, 100*time.Millisecond)
		batch := queuedBatch(t, "a", "b")

		h, err := cl.Submit(ctx, batch)
		require.NoError(t, err)

		waitCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		statuses, err := cl.Wait(waitCtx, h)
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, adapter.wasCanceled())
		assert.Equal(t, model.StatusSkipped, statuses["S/a"])
		assert.Equal(t, model.StatusSkipped, statuses["S/b"])
	})
}
