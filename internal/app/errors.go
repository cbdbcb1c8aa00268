package app

import "fmt"

// EmptySelectionError reports that a non-empty run was requested but the
// filter criteria matched no cases. It is a configuration error: the run
// aborts before any execution.
type EmptySelectionError struct {
	StudyPath string
}

func (e *EmptySelectionError) Error() string {
	return fmt.Sprintf("filter criteria matched no cases in %s", e.StudyPath)
}
