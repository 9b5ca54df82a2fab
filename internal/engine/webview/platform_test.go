//go:build cgo && (linux || darwin || windows)

package webview

import (
	"testing"

	"cellxgene-desktop/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every platform places the view through a hidden window it can move, size
// and collapse, so none claims direct child embedding.
func TestPlatformUsesHiddenWindows(t *testing.T) {
	p := newPlatform(logger.Nop())
	assert.False(t, p.capabilities().ChildEmbedding)

	w, err := p.newHiddenWindow(0)
	require.ErrorIs(t, err, ErrNoParent)
	assert.Nil(t, w)
	assert.Nil(t, p.parentPointer(42))
}
