package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle. Cycle holds every case id on the
// detected cycle, in edge order. It is a configuration error: the run
// aborts before any execution.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}
