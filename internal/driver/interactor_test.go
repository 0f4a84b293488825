// File: internal/driver/interactor_test.go
package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// stubRun returns a runFn that records the call and fails with err when set.
func stubRun(called *int, err error) runFn {
	return func(ctx context.Context, actions ...chromedp.Action) error {
		*called++
		return err
	}
}

func TestCSSStyleRunError(t *testing.T) {
	var calls int
	boom := errors.New("target crashed")
	i := NewInteractor(zaptest.NewLogger(t), stubRun(&calls, boom))

	_, err := i.CSSStyle(context.Background(), "#missing")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `computed style of "#missing"`)
	assert.Equal(t, 1, calls)
}

func TestCSSStyleNoMatch(t *testing.T) {
	// A run that never fills the result models a selector with no match.
	var calls int
	i := NewInteractor(zaptest.NewLogger(t), stubRun(&calls, nil))

	_, err := i.CSSStyle(context.Background(), "div.gone")
	assert.ErrorContains(t, err, `no element matches "div.gone"`)
}
