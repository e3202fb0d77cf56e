package splittest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecipe is returned when a recipe resolves to zero prompts
	// and so has no effective system prompt.
	ErrInvalidRecipe = errors.New("splittest: recipe has no resolvable prompts")

	// ErrEmptyUserText is returned when a turn is submitted without text.
	ErrEmptyUserText = errors.New("splittest: user text is required")

	// ErrNilSession is returned when an operation receives no session.
	ErrNilSession = errors.New("splittest: session is required")

	// ErrMessageNotFound is returned when feedback targets an unknown turn.
	ErrMessageNotFound = errors.New("splittest: message not found")

	// ErrNotReadyForAnalysis is returned when a session is finalized with no
	// non-deleted feedback. Callers gate on this preemptively; reaching it is
	// a caller bug, but it fails safely.
	ErrNotReadyForAnalysis = errors.New("splittest: session has no feedback to analyze")

	// ErrTurnInFlight is returned when a second turn is submitted for a
	// session whose previous turn has not finished.
	ErrTurnInFlight = errors.New("splittest: a turn is already in flight for this session")
)

// AnalysisError is a finalize-time failure. Raw carries the model's unparsed
// output when JSON decoding failed, retained for diagnostic display.
type AnalysisError struct {
	Raw string
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("splittest: analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
