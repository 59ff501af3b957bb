// Package supervisor manages the lifecycle of a single SIPp process: it
// spawns it, tails its telemetry files and drives it over stdin.
package supervisor

// State represents the current state of a supervised worker.
type State int

const (
	// StateStarting indicates the process is being spawned and its
	// telemetry files are awaited.
	StateStarting State = iota

	// StateRunning indicates the process is alive and being tailed.
	StateRunning

	// StateStopping indicates the stop sequence is in progress.
	StateStopping

	// StateStopped indicates the process has exited. A stopped worker is
	// never restarted; a new one must be created.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true if the process may still be alive.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}
