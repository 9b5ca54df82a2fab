package app

import "fmt"

type State int32

const (
	StateInit State = iota
	StateStarting
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// next lists the legal transitions. ShuttingDown is reachable from any live
// state so a close request during startup still tears down in order.
var next = map[State][]State{
	StateInit:         {StateStarting, StateShuttingDown},
	StateStarting:     {StateRunning, StateShuttingDown},
	StateRunning:      {StateShuttingDown},
	StateShuttingDown: {StateTerminated},
}

func canTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
