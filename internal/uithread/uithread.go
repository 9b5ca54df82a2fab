// Package uithread abstracts "run this on the UI thread" so the parts of the
// application that marshal work back to the UI can run against fyne in
// production and against a standalone loop in tests.
package uithread

import (
	"sync/atomic"

	"fyne.io/fyne/v2"
)

// Scheduler queues fn for execution on the UI thread. Do never blocks and may
// be called from any goroutine.
type Scheduler interface {
	Do(fn func())
}

// Fyne schedules onto the fyne driver's main loop.
//
// Once the driver's loop has drained, fyne.Do runs callbacks inline on the
// calling goroutine. Close must therefore be called on the UI thread before
// the loop exits; from then on Do drops work, including callbacks that were
// queued earlier but have not run yet.
type Fyne struct {
	closed atomic.Bool
	do     func(func())
}

func NewFyne() *Fyne {
	return &Fyne{do: fyne.Do}
}

func (f *Fyne) Do(fn func()) {
	if f.closed.Load() {
		return
	}
	f.do(func() {
		if f.closed.Load() {
			return
		}
		fn()
	})
}

func (f *Fyne) Close() {
	f.closed.Store(true)
}

func (f *Fyne) Closed() bool {
	return f.closed.Load()
}
