package meter

// State is the lifecycle state of a Loop.
type State int32

const (
	// Uninitialized loops have not started.
	Uninitialized State = iota
	// Running loops are acquiring.
	Running
	// Stopped loops ended on cancellation.
	Stopped
	// Aborted loops ended on a sensor or sink failure.
	Aborted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}
