package uithread

import (
	"sync"
	"sync/atomic"
)

// Loop is a cooperative single-goroutine event loop. Work queued with Do runs
// in FIFO order on the goroutine that called Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	dispatching atomic.Bool
	closed      atomic.Bool
	dispatched  atomic.Uint64
}

func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Do queues fn. Work queued after Quit is dropped.
func (l *Loop) Do(fn func()) {
	if l.closed.Load() {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run dispatches queued work until Quit is called.
func (l *Loop) Run() {
	defer close(l.stopped)

	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}

		for _, fn := range batch {
			if l.closed.Load() {
				return
			}
			l.dispatching.Store(true)
			fn()
			l.dispatching.Store(false)
			l.dispatched.Add(1)
		}
	}
}

// Quit stops dispatching. Callbacks still queued are discarded.
func (l *Loop) Quit() {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.quit)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// OnLoop reports whether a callback is currently being dispatched by the loop.
func (l *Loop) OnLoop() bool {
	return l.dispatching.Load()
}

func (l *Loop) Dispatched() uint64 {
	return l.dispatched.Load()
}

// Call runs fn on the loop and waits for it. It must not be called from the
// loop itself.
func (l *Loop) Call(fn func()) bool {
	done := make(chan struct{})
	l.Do(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return true
	case <-l.stopped:
		return false
	}
}
