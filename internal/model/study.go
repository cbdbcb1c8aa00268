package model

// Study is a named group of related cases, loaded from one study block.
type Study struct {
	// Name is the unique study name.
	Name string
	// Path is the study directory relative to the repository root.
	Path string
	// Cases holds the study's cases in declaration order. Declaration order
	// is load-bearing: the topological sort uses it to break ties so that
	// execution order is reproducible across runs.
	Cases []*Case
}

// CaseIndex builds a lookup from case id to case over a set of studies.
func CaseIndex(studies []*Study) map[string]*Case {
	index := make(map[string]*Case)
	for _, s := range studies {
		for _, c := range s.Cases {
			index[c.ID()] = c
		}
	}
	return index
}
