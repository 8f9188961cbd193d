package orchestrator

// State names one phase of a run's lifecycle. Transitions always move
// forward except for Error, which is reachable from anywhere.
type State string

const (
	StateLoading   State = "loading"   // StateLoading covers history load and context assembly.
	StatePlanning  State = "planning"  // StatePlanning covers a reasoning/plan model call.
	StateExecuting State = "executing" // StateExecuting covers tool-capable model calls and tool runs.
	StateSynthesis State = "synthesis" // StateSynthesis covers production of the final answer.
	StateCompleted State = "completed" // StateCompleted is the successful terminal state.
	StateError     State = "error"     // StateError is the failure terminal state.
)

// Terminal returns true for the two states a run can end in.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}
