package chronograph

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionFailed is returned when the source document is
	// unreadable or yields no usable text.
	ErrExtractionFailed = errors.New("chronograph: extraction failed")

	// ErrGraphConstructionFailed is returned when no chunk contributed
	// any graph elements.
	ErrGraphConstructionFailed = errors.New("chronograph: graph construction failed")

	// ErrPatternDiscoveryFailed is returned when the graph store cannot
	// be queried for patterns.
	ErrPatternDiscoveryFailed = errors.New("chronograph: pattern discovery failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("chronograph: invalid configuration")
)

// StageError is a fatal stage failure tagged with the stage that produced
// it. Every collaborator error is converted into a StageError at the stage
// boundary, so a failed report always names its originating stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// newStageError wraps err with the stage name, keeping the sentinel in the
// chain for errors.Is checks.
func newStageError(stage Stage, sentinel, err error) *StageError {
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %v", sentinel, err)}
}
