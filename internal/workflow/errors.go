package workflow

import (
	"fmt"

	"verdandi/internal/services"
)

// StageError is returned by Orchestrator.Run when a stage fails. The
// experiment is already marked failed and may be rerun.
type StageError struct {
	ExperimentID int64
	Stage        string
	Kind         services.Kind
	Attempts     int
	Err          error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("experiment %d: stage %s failed (%s, %d attempts): %v",
		e.ExperimentID, e.Stage, e.Kind, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
