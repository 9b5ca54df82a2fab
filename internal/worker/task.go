package worker

import (
	"context"
	"fmt"
	"time"
)

type Kind int

const (
	// KindServerRun blocks for the life of the process.
	KindServerRun Kind = iota
	// KindDataLoad produces exactly one outcome.
	KindDataLoad
)

func (k Kind) String() string {
	switch k {
	case KindServerRun:
		return "server_run"
	case KindDataLoad:
		return "data_load"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Body is the blocking work of a task.
type Body func(ctx context.Context) (interface{}, error)

// Task is a unit of background work. OnOutcome, when set, is invoked on the UI
// thread exactly once with the task's terminal outcome.
type Task struct {
	Kind      Kind
	Payload   interface{}
	Body      Body
	OnOutcome func(Outcome)
}

// Outcome is the terminal result of a task: either Value or Err.
type Outcome struct {
	TaskID   uint64
	Kind     Kind
	Payload  interface{}
	Value    interface{}
	Err      error
	Duration time.Duration
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// TaskInfo describes an in-flight task.
type TaskInfo struct {
	ID      uint64
	Kind    Kind
	Started time.Time
}
