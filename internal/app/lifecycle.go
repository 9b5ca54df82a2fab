package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cellxgene-desktop/internal/gui"
	"cellxgene-desktop/internal/shutdown"
)

const (
	realizeAttempts = 50
	realizeRetry    = 20 * time.Millisecond
)

// bindLifecycle hooks window realization, close requests and OS signals.
func (a *Application) bindLifecycle() {
	a.fyneApp.Lifecycle().SetOnStarted(func() {
		a.startWhenRealized(realizeAttempts)
	})
	// Quitting without a close request (e.g. the macOS app menu) still has
	// to gate the scheduler before the driver starts running callbacks inline.
	a.fyneApp.Lifecycle().SetOnStopped(a.scheduler.Close)

	a.window.SetCloseIntercept(func() {
		a.logger.Info("Application", "close requested", nil)
		a.requestClose()
	})

	a.stopSignals = shutdown.Listen(context.Background(), a.logger, func(sig os.Signal) {
		a.scheduler.Do(a.requestClose)
	})
}

// startWhenRealized embeds the browser as soon as the window has a native
// handle. Drivers may realize the window a few frames after OnStarted.
func (a *Application) startWhenRealized(attempts int) {
	ref, err := gui.NativeHandle(a.window)
	if errors.Is(err, gui.ErrNoNativeHandle) && attempts > 1 {
		time.AfterFunc(realizeRetry, func() {
			a.scheduler.Do(func() { a.startWhenRealized(attempts - 1) })
		})
		return
	}
	if err != nil {
		a.fail(fmt.Errorf("window never realized: %w", err))
		return
	}

	a.logger.Debug("Application", "window realized", map[string]interface{}{
		"handle": fmt.Sprintf("%#x", uintptr(ref)),
	})
	if err := a.controller.Start(ref); err != nil {
		a.fail(fmt.Errorf("startup: %w", err))
	}
}

// requestClose is the single close path for the window button, the OS
// signal handler and startup failures. It runs on the UI thread.
func (a *Application) requestClose() {
	if a.window == nil {
		return
	}
	a.controller.Close()
	a.scheduler.Close()
	a.window.Close()
}

func (a *Application) fail(err error) {
	a.logger.Error("Application", err, nil)
	if a.startErr == nil {
		a.startErr = err
	}
	a.requestClose()
}
