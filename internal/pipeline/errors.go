package pipeline

import (
	"fmt"

	"tailor/internal/services"
)

// StageDependencyError reports a stage that needs output from a stage that has
// not completed, or that is declared later (or is itself).
type StageDependencyError struct {
	Stage    string
	Requires string
	Reason   string
}

func (e *StageDependencyError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "has not completed"
	}
	return fmt.Sprintf("stage %q depends on %q which %s", e.Stage, e.Requires, reason)
}

func (e *StageDependencyError) Unwrap() error { return services.ErrStageDependency }
