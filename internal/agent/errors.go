package agent

import (
	"errors"
	"fmt"
)

// LoopPhase names the state a Runner was in when a run-terminating error
// occurred, for diagnostics.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseModelTurn    LoopPhase = "model_turn"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseComplete     LoopPhase = "complete"
)

// ErrMaxIterations is wrapped into the LoopError returned when a run
// exhausts its iteration bound without the model reaching a terminal
// stop reason, per spec.md §4.7/§8 scenario 6.
var ErrMaxIterations = errors.New("tool_execution: max iterations reached")

// LoopError reports the phase and iteration a Runner failed in. Only the
// model-turn transport error and max-iterations cases ever produce one —
// every other failure mode (missing tool, failing tool) is absorbed into
// the conversation as an is_error tool_result instead, per spec.md §4.7.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent: loop error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

func (e *LoopError) Unwrap() error { return e.Cause }
