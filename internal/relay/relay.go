// Package relay marshals completions from worker goroutines onto the UI thread.
//
// Producers call Notify from any goroutine; deliveries are queued FIFO and
// drained by a single callback scheduled on the UI thread. At most one drain is
// scheduled at a time, so a burst of completions costs one UI wakeup.
package relay

import (
	"errors"
	"fmt"
	"sync"

	"cellxgene-desktop/internal/logger"
	"cellxgene-desktop/internal/uithread"
)

var (
	ErrClosed    = errors.New("relay closed")
	ErrDuplicate = errors.New("completion already queued")
)

type entry struct {
	id      uint64
	deliver func()
}

type Relay struct {
	scheduler uithread.Scheduler
	logger    logger.Logger

	mu        sync.Mutex
	queue     []entry
	queued    map[uint64]struct{}
	scheduled bool
	closed    bool
	delivered uint64
}

func New(scheduler uithread.Scheduler, log logger.Logger) *Relay {
	return &Relay{
		scheduler: scheduler,
		logger:    log,
		queued:    make(map[uint64]struct{}),
	}
}

// Notify queues deliver to run on the UI thread. id identifies the task whose
// completion is being delivered; a second notify for an id that is still queued
// is rejected.
func (r *Relay) Notify(id uint64, deliver func()) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, dup := r.queued[id]; dup {
		r.mu.Unlock()
		return ErrDuplicate
	}

	r.queue = append(r.queue, entry{id: id, deliver: deliver})
	r.queued[id] = struct{}{}

	schedule := !r.scheduled
	r.scheduled = true
	r.mu.Unlock()

	if schedule {
		r.scheduler.Do(func() { r.Drain() })
	}
	return nil
}

// Drain runs every queued delivery. It must be called on the UI thread.
//
// A panicking callback is logged and re-raised so the process crash handler
// sees it. The rest of the batch goes back to the front of the queue and runs
// on the next drain.
func (r *Relay) Drain() int {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.scheduled = false
	r.mu.Unlock()

	for i, e := range batch {
		r.mu.Lock()
		delete(r.queued, e.id)
		r.delivered++
		r.mu.Unlock()

		r.run(e, batch[i+1:])
	}

	if len(batch) > 0 {
		r.logger.Debug("Relay", "completions delivered", map[string]interface{}{
			"count": len(batch),
		})
	}
	return len(batch)
}

func (r *Relay) run(e entry, rest []entry) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.logger.Error("Relay", fmt.Errorf("completion callback panicked: %v", rec), map[string]interface{}{
			"task_id":  e.id,
			"requeued": len(rest),
		})
		r.requeue(rest)
		panic(rec)
	}()
	e.deliver()
}

func (r *Relay) requeue(rest []entry) {
	if len(rest) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue = append(append([]entry(nil), rest...), r.queue...)
}

// Pending returns the number of queued, undelivered completions.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Relay) Delivered() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered
}

// Close rejects further notifications and discards anything still queued. It is
// called once the UI loop has stopped dispatching.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	if len(r.queue) > 0 {
		r.logger.Warning("Relay", "discarding undelivered completions", map[string]interface{}{
			"count": len(r.queue),
		})
	}
	r.queue = nil
	r.queued = make(map[uint64]struct{})
}
