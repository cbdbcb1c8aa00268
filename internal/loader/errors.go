package loader

import "fmt"

// DuplicateCaseError reports two case declarations resolving to the same id.
// It is a configuration error: the run aborts before any execution.
type DuplicateCaseError struct {
	ID string
}

func (e *DuplicateCaseError) Error() string {
	return fmt.Sprintf("duplicate case id %q", e.ID)
}

// UnknownDependencyError reports a depends_on reference naming a case id
// that does not exist in any loaded study.
type UnknownDependencyError struct {
	CaseID string
	Ref    string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("case %s depends on unknown case %q", e.CaseID, e.Ref)
}
