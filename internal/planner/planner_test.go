package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/studymanager/internal/model"
)

func mkCases(names ...string) []*model.Case {
	out := make([]*model.Case, 0, len(names))
	for _, name := range names {
		out = append(out, &model.Case{
			Study:             "S",
			Name:              name,
			EstimatedWallTime: time.Hour,
		})
	}
	return out
}

func batchIDs(b *Batch) []string {
	out := make([]string, 0, b.Size())
	for _, c := range b.Cases {
		out = append(out, c.ID())
	}
	return out
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("size cap packs greedily", func(t *testing.T) {
		plan := Build(ctx, mkCases("c1", "c2", "c3", "c4", "c5"), 2, 0)

		require.Len(t, plan.Batches, 3)
		assert.Equal(t, []string{"S/c1", "S/c2"}, batchIDs(plan.Batches[0]))
		assert.Equal(t, []string{"S/c3", "S/c4"}, batchIDs(plan.Batches[1]))
		assert.Equal(t, []string{"S/c5"}, batchIDs(plan.Batches[2]))
	})

	t.Run("wall time budget closes a batch", func(t *testing.T) {
		plan := Build(ctx, mkCases("c1", "c2", "c3"), 0, 2*time.Hour)

		require.Len(t, plan.Batches, 2)
		assert.Equal(t, 2, plan.Batches[0].Size())
		assert.Equal(t, 1, plan.Batches[1].Size())
		assert.Equal(t, 2*time.Hour, plan.Batches[0].EstimatedWallTime)
	})

	t.Run("oversized case forms a singleton batch", func(t *testing.T) {
		cases := mkCases("small", "huge", "small2")
		cases[1].EstimatedWallTime = 10 * time.Hour

		plan := Build(ctx, cases, 0, 2*time.Hour)

		require.Len(t, plan.Batches, 3)
		assert.Equal(t, []string{"S/huge"}, batchIDs(plan.Batches[1]))
	})

	t.Run("no caps means one batch", func(t *testing.T) {
		plan := Build(ctx, mkCases("c1", "c2", "c3"), 0, 0)
		require.Len(t, plan.Batches, 1)
		assert.Equal(t, 3, plan.Batches[0].Size())
	})

	t.Run("dependency order survives packing", func(t *testing.T) {
		// Input is topological: c1 before c3 which depends on it.
		cases := mkCases("c1", "c2", "c3")
		cases[2].DependsOn = []string{"S/c1"}

		plan := Build(ctx, cases, 2, 0)

		indexOf := func(id string) (batch, pos int) {
			for bi, b := range plan.Batches {
				for pi, c := range b.Cases {
					if c.ID() == id {
						return bi, pi
					}
				}
			}
			t.Fatalf("case %s not planned", id)
			return -1, -1
		}

		b1, p1 := indexOf("S/c1")
		b3, p3 := indexOf("S/c3")
		require.GreaterOrEqual(t, b3, b1)
		if b3 == b1 {
			assert.Less(t, p1, p3)
		}
	})

	t.Run("batch totals", func(t *testing.T) {
		cases := mkCases("c1", "c2")
		cases[0].NProcs = 4
		cases[1].NProcs = 8

		plan := Build(ctx, cases, 0, 0)
		require.Len(t, plan.Batches, 1)
		assert.Equal(t, 12, plan.Batches[0].TotalProcs())
	})
}
