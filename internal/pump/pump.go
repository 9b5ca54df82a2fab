// Package pump gives the embedded engine CPU time for its internal work queue.
package pump

import (
	"sync"
	"sync/atomic"
	"time"

	"cellxgene-desktop/internal/engine"
	"cellxgene-desktop/internal/logger"
	"cellxgene-desktop/internal/uithread"
)

const DefaultInterval = 10 * time.Millisecond

type Pump interface {
	Name() string
	Start()
	// Stop halts pumping. Once it returns the engine is never pumped again.
	Stop()
}

// New picks the external pump when the engine drives itself from the OS event
// loop, and the timer pump otherwise.
func New(rt *engine.Runtime, scheduler uithread.Scheduler, interval time.Duration, external bool, log logger.Logger) Pump {
	if external {
		return External{}
	}
	return NewTimer(rt, scheduler, interval, log)
}

// External is used when the engine owns its OS loop integration.
type External struct{}

func (External) Name() string { return "external" }
func (External) Start()       {}
func (External) Stop()        {}

// Timer calls PumpOnce on the UI thread at a fixed interval. The engine pump
// is not reentrant with UI work, so the ticker only schedules; the call itself
// always happens on the UI thread. At most one pump callback is queued at a
// time, so a busy UI thread does not accumulate a backlog.
type Timer struct {
	runtime   *engine.Runtime
	scheduler uithread.Scheduler
	interval  time.Duration
	logger    logger.Logger

	queued  atomic.Bool
	stopped atomic.Bool
	pumps   atomic.Uint64

	mu      sync.Mutex
	started bool
	halted  bool
	done    chan struct{}
	exited  chan struct{}
}

func NewTimer(rt *engine.Runtime, scheduler uithread.Scheduler, interval time.Duration, log logger.Logger) *Timer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{
		runtime:   rt,
		scheduler: scheduler,
		interval:  interval,
		logger:    log,
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
}

func (t *Timer) Name() string { return "timer" }

func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started || t.halted {
		return
	}
	t.started = true

	t.logger.Debug("Pump", "timer pump started", map[string]interface{}{
		"interval": t.interval.String(),
	})
	go t.loop()
}

func (t *Timer) loop() {
	defer close(t.exited)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.queued.CompareAndSwap(false, true) {
				continue
			}
			t.scheduler.Do(t.pumpOnUIThread)
		}
	}
}

func (t *Timer) pumpOnUIThread() {
	t.queued.Store(false)
	if t.stopped.Load() {
		return
	}
	t.runtime.PumpOnce()
	t.pumps.Add(1)
}

// Stop waits for the ticker goroutine to exit. A pump callback that was
// already queued on the UI thread becomes a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.halted {
		t.mu.Unlock()
		return
	}
	t.halted = true
	t.stopped.Store(true)
	started := t.started
	t.mu.Unlock()

	if started {
		close(t.done)
		<-t.exited
	}

	t.logger.Debug("Pump", "timer pump stopped", map[string]interface{}{
		"pumps": t.pumps.Load(),
	})
}

func (t *Timer) Pumps() uint64 {
	return t.pumps.Load()
}
