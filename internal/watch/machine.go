// Package watch implements the debounced rebuild loop used in watch mode.
//
// Change notifications fold into a three-state Machine so that at most one
// build runs at a time and at most one follow-up build is queued no matter
// how many changes arrive while a build is in flight.
package watch

// State is the rebuild state of a watch session.
type State int

const (
	// Idle means no build is running.
	Idle State = iota
	// Building means a build is running and nothing is queued.
	Building
	// BuildingQueued means a build is running and one more is owed.
	BuildingQueued
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case BuildingQueued:
		return "building_queued"
	default:
		return "unknown"
	}
}

// Action tells the caller what to do after a transition.
type Action int

const (
	// None requires nothing from the caller.
	None Action = iota
	// StartBuild requires the caller to start exactly one build.
	StartBuild
)

// Machine is the pure rebuild state machine. It is not safe for concurrent
// use; the Loop goroutine owns it.
type Machine struct {
	state State
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// OnChange records a change notification.
func (m *Machine) OnChange() Action {
	switch m.state {
	case Idle:
		m.state = Building
		return StartBuild
	case Building:
		m.state = BuildingQueued
	}
	return None
}

// OnBuildDone records the end of the running build, successful or not.
func (m *Machine) OnBuildDone() Action {
	switch m.state {
	case BuildingQueued:
		m.state = Building
		return StartBuild
	case Building:
		m.state = Idle
	}
	return None
}
