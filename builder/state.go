package builder

import "fmt"

// State is a build's position in its lifecycle:
// Idle → Validating → Embedding → Writing → Swapping → Done, or Failed /
// Canceled from any non-terminal state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateEmbedding
	StateWriting
	StateSwapping
	StateDone
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateEmbedding:
		return "embedding"
	case StateWriting:
		return "writing"
	case StateSwapping:
		return "swapping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}
