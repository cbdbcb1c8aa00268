package aggregate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/studymanager/internal/model"
)

func terminalCase(t *testing.T, study, name string, tags []string, outcome model.Status) *model.Case {
	t.Helper()
	c := &model.Case{Study: study, Name: name, Tags: tags}
	switch outcome {
	case model.StatusCompleted, model.StatusFailed:
		require.NoError(t, c.Advance(model.StatusQueued))
		require.NoError(t, c.Advance(model.StatusRunning))
		require.NoError(t, c.Advance(outcome))
		if outcome == model.StatusFailed {
			c.SetResult(&model.RunResult{ExitCode: 1, Err: "solver exited with code 1"})
		} else {
			c.SetResult(&model.RunResult{Artifacts: []string{"results.csv"}})
		}
	case model.StatusMatch, model.StatusMismatch:
		require.NoError(t, c.Advance(model.StatusQueued))
		require.NoError(t, c.Advance(model.StatusRunning))
		require.NoError(t, c.Advance(model.StatusCompleted))
		require.NoError(t, c.Advance(model.StatusCompared))
		require.NoError(t, c.Advance(outcome))
	case model.StatusSkipped:
		require.True(t, c.Skip(assert.AnError))
	default:
		t.Fatalf("not a terminal outcome: %s", outcome)
	}
	return c
}

func TestAdd(t *testing.T) {
	t.Run("non-terminal cases are rejected", func(t *testing.T) {
		agg := New()
		c := &model.Case{Study: "S", Name: "c"}
		require.NoError(t, c.Advance(model.StatusQueued))

		err := agg.Add(c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not terminal")
	})

	t.Run("adding archives the outcome and marks the case reported", func(t *testing.T) {
		agg := New()
		c := terminalCase(t, "S", "c", []string{"coarse"}, model.StatusCompleted)

		require.NoError(t, agg.Add(c))
		assert.Equal(t, model.StatusReported, c.Status())

		records := agg.Records()
		require.Len(t, records, 1)
		assert.Equal(t, "S/c", records[0].ID)
		assert.Equal(t, model.StatusCompleted, records[0].Status)
	})

	t.Run("re-adding is a no-op", func(t *testing.T) {
		agg := New()
		c := terminalCase(t, "S", "c", nil, model.StatusCompleted)

		require.NoError(t, agg.Add(c))
		before := agg.Summary()

		// The second add sees the case as REPORTED; nothing changes.
		require.NoError(t, agg.Add(c))
		after := agg.Summary()

		if diff := cmp.Diff(before, after); diff != "" {
			t.Errorf("summary changed on re-add (-before +after):\n%s", diff)
		}
		assert.Len(t, agg.Records(), 1)
	})
}

func TestSummary(t *testing.T) {
	newAgg := func(t *testing.T) *Aggregator {
		agg := New()
		require.NoError(t, agg.Add(terminalCase(t, "S1", "a", []string{"coarse"}, model.StatusCompleted)))
		require.NoError(t, agg.Add(terminalCase(t, "S1", "b", []string{"fine"}, model.StatusMatch)))
		require.NoError(t, agg.Add(terminalCase(t, "S2", "c", []string{"coarse"}, model.StatusFailed)))
		require.NoError(t, agg.Add(terminalCase(t, "S2", "d", nil, model.StatusSkipped)))
		return agg
	}

	t.Run("tallies by status, study and tag", func(t *testing.T) {
		s := newAgg(t).Summary()

		want := &Summary{
			Total: 4,
			Counts: Counts{
				"COMPLETED": 1, "MATCH": 1, "FAILED": 1, "SKIPPED": 1,
			},
			ByStudy: map[string]Counts{
				"S1": {"COMPLETED": 1, "MATCH": 1},
				"S2": {"FAILED": 1, "SKIPPED": 1},
			},
			ByTag: map[string]Counts{
				"coarse": {"COMPLETED": 1, "FAILED": 1},
				"fine":   {"MATCH": 1},
			},
		}
		if diff := cmp.Diff(want, s); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("aggregation is independent of insertion order", func(t *testing.T) {
		// Two identical case sets: Add advances a case to REPORTED, so each
		// aggregator needs its own copies.
		mkCases := func() []*model.Case {
			return []*model.Case{
				terminalCase(t, "S1", "a", []string{"coarse"}, model.StatusCompleted),
				terminalCase(t, "S1", "b", nil, model.StatusFailed),
				terminalCase(t, "S2", "c", nil, model.StatusMatch),
			}
		}

		forward := New()
		for _, c := range mkCases() {
			require.NoError(t, forward.Add(c))
		}
		reversed := New()
		cases := mkCases()
		for i := len(cases) - 1; i >= 0; i-- {
			require.NoError(t, reversed.Add(cases[i]))
		}

		if diff := cmp.Diff(forward.Summary(), reversed.Summary()); diff != "" {
			t.Errorf("summary depends on insertion order:\n%s", diff)
		}
	})
}

func TestSucceeded(t *testing.T) {
	t.Run("completed, matched and skipped succeed", func(t *testing.T) {
		agg := New()
		require.NoError(t, agg.Add(terminalCase(t, "S", "a", nil, model.StatusCompleted)))
		require.NoError(t, agg.Add(terminalCase(t, "S", "b", nil, model.StatusMatch)))
		require.NoError(t, agg.Add(terminalCase(t, "S", "c", nil, model.StatusSkipped)))
		assert.True(t, agg.Summary().Succeeded())
	})

	t.Run("a failure or mismatch does not", func(t *testing.T) {
		failed := New()
		require.NoError(t, failed.Add(terminalCase(t, "S", "a", nil, model.StatusFailed)))
		assert.False(t, failed.Summary().Succeeded())

		mismatched := New()
		require.NoError(t, mismatched.Add(terminalCase(t, "S", "a", nil, model.StatusMismatch)))
		assert.False(t, mismatched.Summary().Succeeded())
	})

	t.Run("empty run succeeds", func(t *testing.T) {
		assert.True(t, New().Summary().Succeeded())
	})
}
