package main

import (
	"fmt"
	"os"
	"runtime"

	"cellxgene-desktop/internal/app"
	"cellxgene-desktop/internal/config"
	"cellxgene-desktop/internal/engine/webview"
	"cellxgene-desktop/internal/logger"
)

func init() {
	// The engine and the window system are bound to the thread that
	// initialized them; keep main on one OS thread.
	runtime.LockOSThread()
}

func main() {
	os.Exit(run())
}

func run() (code int) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		return 2
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		return 2
	}
	log := logger.New(level, cfg.Logging.JSON)

	log.Info("Main", "starting", map[string]interface{}{
		"version":    app.AppVersion,
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"server":     cfg.ServerURL(),
	})

	application, err := app.NewApplication(cfg, webview.New(log), log)
	if err != nil {
		log.Error("Main", err, nil)
		return 1
	}

	// An unrecovered panic on the UI thread goes to the engine crash hook so
	// no engine process outlives the shell.
	defer func() {
		if r := recover(); r != nil {
			application.Runtime().HandleCrash(r)
			code = 1
		}
	}()

	if err := application.Run(); err != nil {
		log.Error("Main", err, nil)
		return 1
	}

	log.Info("Main", "terminated", nil)
	return 0
}
