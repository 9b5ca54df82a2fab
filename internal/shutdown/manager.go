package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cellxgene-desktop/internal/logger"
)

type step struct {
	name string
	fn   func()
}

// Manager runs registered steps once, in registration order, on the calling
// goroutine. Engine teardown is thread-affine, so steps are never moved to
// another goroutine.
type Manager struct {
	steps  []step
	logger logger.Logger
	mu     sync.Mutex
	done   chan struct{}
	ran    []string
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{
		logger: log,
		done:   make(chan struct{}),
	}
}

func (m *Manager) Register(name string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps = append(m.steps, step{name: name, fn: fn})
}

func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}

	m.logger.Info("ShutdownManager", "shutdown sequence initiated", map[string]interface{}{
		"steps": len(m.steps),
	})

	for i, s := range m.steps {
		if s.fn == nil {
			continue
		}

		start := time.Now()
		s.fn()
		m.ran = append(m.ran, s.name)

		m.logger.Debug("ShutdownManager", "step completed", map[string]interface{}{
			"step":     s.name,
			"index":    i,
			"duration": time.Since(start).String(),
		})
	}

	m.logger.Info("ShutdownManager", "shutdown sequence completed", nil)
}

// Completed lists the steps that ran, in order.
func (m *Manager) Completed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ran...)
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Listen calls onSignal once on the first SIGINT or SIGTERM. The returned stop
// function releases the signal handler.
func Listen(ctx context.Context, log logger.Logger, onSignal func(os.Signal)) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("ShutdownManager", "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			onSignal(sig)
		case <-ctx.Done():
		}
	}()

	return func() {
		cancel()
		signal.Stop(sigChan)
	}
}
