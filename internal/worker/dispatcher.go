// Package worker runs blocking work off the UI thread and hands each task's
// outcome to the completion relay.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cellxgene-desktop/internal/logger"
	"cellxgene-desktop/internal/metrics"
)

var (
	ErrClosed = errors.New("dispatcher closed")
	ErrNoBody = errors.New("task has no body")
)

// ErrUnexpectedExit is reported when a server task returns on its own.
var ErrUnexpectedExit = errors.New("server task returned unexpectedly")

// Notifier is the completion relay as seen by the dispatcher.
type Notifier interface {
	Notify(id uint64, deliver func()) error
}

// MinSize is the smallest pool that can hold a running server task and still
// run a load.
const MinSize = 2

// DefaultSize is one worker per CPU, never fewer than MinSize.
func DefaultSize() int {
	n := runtime.NumCPU()
	if n < MinSize {
		n = MinSize
	}
	return n
}

// Dispatcher is a bounded pool. Submit never blocks: each task waits for a
// worker token on its own goroutine, and a token is held for the whole body.
type Dispatcher struct {
	relay   Notifier
	logger  logger.Logger
	metrics *metrics.Metrics
	size    int
	tokens  chan struct{}
	ctx     context.Context

	nextID atomic.Uint64
	closed atomic.Bool

	// mu also orders Submit's wg.Add against Close, so Wait never races an Add.
	mu      sync.Mutex
	pending map[uint64]TaskInfo
	wg      sync.WaitGroup
}

func NewDispatcher(size int, relay Notifier, m *metrics.Metrics, log logger.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultSize()
	}
	if size < MinSize {
		log.Warning("Dispatcher", "pool size raised to minimum", map[string]interface{}{
			"requested": size,
			"size":      MinSize,
		})
		size = MinSize
	}

	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}

	return &Dispatcher{
		relay:   relay,
		logger:  log,
		metrics: m,
		size:    size,
		tokens:  tokens,
		ctx:     context.Background(),
		pending: make(map[uint64]TaskInfo),
	}
}

func (d *Dispatcher) Size() int {
	return d.size
}

// Submit queues a task and returns its id immediately.
func (d *Dispatcher) Submit(task Task) (uint64, error) {
	if task.Body == nil {
		return 0, ErrNoBody
	}

	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	id := d.nextID.Add(1)
	d.pending[id] = TaskInfo{ID: id, Kind: task.Kind, Started: time.Now()}
	d.wg.Add(1)
	d.mu.Unlock()

	d.metrics.TaskSubmitted(task.Kind.String())

	go d.execute(id, task)

	d.logger.Debug("Dispatcher", "task submitted", map[string]interface{}{
		"task_id": id,
		"kind":    task.Kind.String(),
	})
	return id, nil
}

func (d *Dispatcher) execute(id uint64, task Task) {
	defer d.wg.Done()

	<-d.tokens
	defer func() { d.tokens <- struct{}{} }()

	start := time.Now()
	value, err := d.run(id, task)

	out := Outcome{
		TaskID:   id,
		Kind:     task.Kind,
		Payload:  task.Payload,
		Value:    value,
		Err:      err,
		Duration: time.Since(start),
	}

	if task.Kind == KindServerRun {
		out = d.serverExited(out)
	}

	d.metrics.TaskFinished(task.Kind.String(), out.OK(), out.Duration)
	d.deliver(task, out)

	// A task leaves the pending set only once its outcome is queued.
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// run executes the body, converting a panic into an error outcome so a
// failing task never takes the process down from a worker goroutine.
func (d *Dispatcher) run(id uint64, task Task) (value interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Dispatcher", fmt.Errorf("task panicked: %v", rec), map[string]interface{}{
				"task_id": id,
				"kind":    task.Kind.String(),
				"stack":   string(debug.Stack()),
			})
			value = nil
			err = fmt.Errorf("%s task panicked: %v", task.Kind, rec)
		}
	}()
	return task.Body(d.ctx)
}

func (d *Dispatcher) serverExited(out Outcome) Outcome {
	if d.closed.Load() {
		d.logger.Info("Dispatcher", "server task finished during shutdown", map[string]interface{}{
			"task_id": out.TaskID,
		})
		return out
	}

	cause := out.Err
	if cause == nil {
		out.Err = ErrUnexpectedExit
	} else {
		out.Err = fmt.Errorf("%w: %v", ErrUnexpectedExit, cause)
	}
	d.logger.Error("Dispatcher", out.Err, map[string]interface{}{
		"task_id": out.TaskID,
		"uptime":  out.Duration.String(),
	})
	return out
}

func (d *Dispatcher) deliver(task Task, out Outcome) {
	if task.OnOutcome == nil {
		return
	}

	var once sync.Once
	err := d.relay.Notify(out.TaskID, func() {
		once.Do(func() { task.OnOutcome(out) })
	})
	if err == nil {
		return
	}

	fields := map[string]interface{}{
		"task_id": out.TaskID,
		"kind":    out.Kind.String(),
		"reason":  err.Error(),
	}
	if d.closed.Load() {
		d.logger.Debug("Dispatcher", "outcome dropped after close", fields)
		return
	}
	d.logger.Warning("Dispatcher", "outcome not delivered", fields)
}

// Pending returns the in-flight tasks ordered by id.
func (d *Dispatcher) Pending() []TaskInfo {
	d.mu.Lock()
	out := make([]TaskInfo, 0, len(d.pending))
	for _, info := range d.pending {
		out = append(out, info)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InFlight counts pending tasks of one kind.
func (d *Dispatcher) InFlight(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, info := range d.pending {
		if info.Kind == kind {
			n++
		}
	}
	return n
}

// Close stops accepting tasks. Running tasks are not cancelled and Close does
// not wait for them; a server task is expected to outlive it.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	already := d.closed.Swap(true)
	d.mu.Unlock()
	if already {
		return
	}
	d.logger.Info("Dispatcher", "closed", map[string]interface{}{
		"in_flight": len(d.Pending()),
	})
}

// Wait closes the dispatcher, then blocks until every submitted task has
// finished or ctx is done. Tests and shutdown paths use it once the server
// task has been stopped.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
