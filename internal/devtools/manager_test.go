// File: internal/devtools/manager_test.go
package devtools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestNewManagerDefaultsBufferSize(t *testing.T) {
	m := NewManager(context.Background(), InterceptConfig{}, zaptest.NewLogger(t))
	assert.Equal(t, defaultBufferSize, m.cfg.BufferSize)

	m = NewManager(context.Background(), InterceptConfig{BufferSize: 16}, zaptest.NewLogger(t))
	assert.Equal(t, 16, m.cfg.BufferSize)
}

func TestStopBeforeStart(t *testing.T) {
	m := NewManager(context.Background(), InterceptConfig{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, m.Stop(context.Background()), ErrNotRunning)

	// Close swallows the not-running case for defer call sites.
	require.NoError(t, m.Close())
}

func TestServeExitsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(context.Background(), InterceptConfig{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	at := &attachedTarget{
		id:     "t1",
		ctx:    ctx,
		cancel: cancel,
		events: make(chan interface{}, 1),
	}
	m.wg.Add(1)
	go m.serve(at)

	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after target context cancel")
	}
}

func TestPatterns(t *testing.T) {
	m := NewManager(context.Background(), InterceptConfig{}, zaptest.NewLogger(t))
	patterns := m.patterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "*", patterns[0].URLPattern)

	m = NewManager(context.Background(), InterceptConfig{
		Patterns: []string{"*://a.example/*", "*://b.example/*"},
	}, zaptest.NewLogger(t))
	patterns = m.patterns()
	require.Len(t, patterns, 2)
	assert.Equal(t, "*://a.example/*", patterns[0].URLPattern)
}
