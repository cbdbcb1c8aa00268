// Package filter narrows the ordered case set for partial runs and makes
// the resulting prerequisite relaxation explicit.
package filter

import (
	"context"

	"github.com/vk/studymanager/internal/ctxlog"
	"github.com/vk/studymanager/internal/model"
)

// Criteria describes a partial-run selection. Zero-value criteria select
// everything.
type Criteria struct {
	// TagsInclude selects cases carrying at least one of these tags. Empty
	// means no tag restriction.
	TagsInclude []string
	// TagsExclude rejects cases carrying any of these tags.
	TagsExclude []string
	// Level, when non-nil, selects only cases at exactly this level.
	Level *int
	// NProcs, when non-nil, selects only cases requesting exactly this
	// many processors.
	NProcs *int
}

// Selection is the filtered working set. Cases keeps the input (topological)
// order. Relaxed names every prerequisite excluded by the criteria: for
// gating purposes those prerequisites count as already completed, which is
// what makes partial and incremental reruns possible.
type Selection struct {
	Cases   []*model.Case
	Relaxed map[string]bool
}

// Matches reports whether a single case passes the criteria.
func (cr Criteria) Matches(c *model.Case) bool {
	if len(cr.TagsInclude) > 0 {
		hit := false
		for _, tag := range cr.TagsInclude {
			if c.HasTag(tag) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, tag := range cr.TagsExclude {
		if c.HasTag(tag) {
			return false
		}
	}
	if cr.Level != nil && c.Level != *cr.Level {
		return false
	}
	if cr.NProcs != nil && c.NProcs != *cr.NProcs {
		return false
	}
	return true
}

// Apply partitions the ordered case list into the selected working set and
// the relaxed remainder. An empty result is not an error here; whether an
// empty run is acceptable is the caller's decision.
func Apply(ctx context.Context, ordered []*model.Case, cr Criteria) Selection {
	logger := ctxlog.FromContext(ctx)

	sel := Selection{Relaxed: make(map[string]bool)}
	for _, c := range ordered {
		if cr.Matches(c) {
			sel.Cases = append(sel.Cases, c)
		} else {
			sel.Relaxed[c.ID()] = true
		}
	}

	logger.Info("Case selection computed.",
		"selected", len(sel.Cases),
		"relaxed", len(sel.Relaxed))
	return sel
}
