package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"cellxgene-desktop/internal/logger"

	"github.com/stretchr/testify/assert"
)

func TestStepsRunOnceInOrder(t *testing.T) {
	m := NewManager(logger.Nop())

	var order []string
	for _, name := range []string{"browser", "pump", "ui", "engine"} {
		name := name
		m.Register(name, func() { order = append(order, name) })
	}
	m.Register("optional", nil)

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, []string{"browser", "pump", "ui", "engine"}, order)
	assert.Equal(t, order, m.Completed())

	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestListenInvokesOnSignal(t *testing.T) {
	got := make(chan os.Signal, 1)
	stop := Listen(context.Background(), logger.Nop(), func(s os.Signal) { got <- s })
	defer stop()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Skip(err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}

	select {
	case s := <-got:
		assert.Equal(t, syscall.SIGTERM, s)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not observed")
	}
}
