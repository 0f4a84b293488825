// File: internal/driver/interactor.go
package driver

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// runFn executes chromedp actions against the session's current target.
type runFn func(ctx context.Context, actions ...chromedp.Action) error

// Rect is an element bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a viewport coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Interactor performs element-level interactions on a session's current
// target. Selectors are CSS.
type Interactor struct {
	logger *zap.Logger
	run    runFn
}

// NewInteractor binds an interactor to a session's action runner.
func NewInteractor(logger *zap.Logger, run runFn) *Interactor {
	return &Interactor{
		logger: logger.Named("interactor"),
		run:    run,
	}
}

// Click clicks the first element matching the selector.
func (i *Interactor) Click(ctx context.Context, selector string) error {
	if err := i.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// DoubleClick double-clicks the first element matching the selector.
func (i *Interactor) DoubleClick(ctx context.Context, selector string) error {
	if err := i.run(ctx, chromedp.DoubleClick(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("double click %q: %w", selector, err)
	}
	return nil
}

// Hover moves the mouse to the center of the element's visible box.
func (i *Interactor) Hover(ctx context.Context, selector string) error {
	rect, err := i.ElementRect(ctx, selector)
	if err != nil {
		return fmt.Errorf("hover %q: %w", selector, err)
	}
	x := rect.X + rect.Width/2
	y := rect.Y + rect.Height/2
	err = i.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y))
	if err != nil {
		return fmt.Errorf("hover %q: %w", selector, err)
	}
	return nil
}

// SendKeys types into the first element matching the selector without
// clearing it first.
func (i *Interactor) SendKeys(ctx context.Context, selector, text string) error {
	if err := i.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("send keys to %q: %w", selector, err)
	}
	return nil
}

// Type clears the element, then types into it.
func (i *Interactor) Type(ctx context.Context, selector, text string) error {
	err := i.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

// Text returns the visible text of the first matching element.
func (i *Interactor) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := i.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("get text of %q: %w", selector, err)
	}
	return text, nil
}

// Attribute returns a named attribute of the first matching element. The
// bool reports whether the attribute exists.
func (i *Interactor) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var value string
	var ok bool
	err := i.run(ctx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery))
	if err != nil {
		return "", false, fmt.Errorf("get attribute %q of %q: %w", name, selector, err)
	}
	return value, ok, nil
}

// CSSStyle returns the computed style of the first matching element as a
// property-to-value map.
func (i *Interactor) CSSStyle(ctx context.Context, selector string) (map[string]string, error) {
	var style map[string]string
	script := fmt.Sprintf(scriptCSSStyle, selector)
	if err := i.run(ctx, chromedp.Evaluate(script, &style)); err != nil {
		return nil, fmt.Errorf("get computed style of %q: %w", selector, err)
	}
	if style == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return style, nil
}

// WaitVisible blocks until the element is visible or the context ends.
func (i *Interactor) WaitVisible(ctx context.Context, selector string) error {
	if err := i.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return nil
}

// ScrollIntoView scrolls the element into the viewport.
func (i *Interactor) ScrollIntoView(ctx context.Context, selector string) error {
	if err := i.run(ctx, chromedp.ScrollIntoView(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("scroll %q into view: %w", selector, err)
	}
	return nil
}

// ScrollBy scrolls the page by a pixel delta.
func (i *Interactor) ScrollBy(ctx context.Context, dx, dy int) error {
	script := fmt.Sprintf(scriptScrollBy, dx, dy)
	if err := i.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll by (%d,%d): %w", dx, dy, err)
	}
	return nil
}

// ElementRect returns the element's bounding box in viewport coordinates.
func (i *Interactor) ElementRect(ctx context.Context, selector string) (Rect, error) {
	var rect *Rect
	script := fmt.Sprintf(scriptElementRect, selector)
	if err := i.run(ctx, chromedp.Evaluate(script, &rect)); err != nil {
		return Rect{}, fmt.Errorf("get rect of %q: %w", selector, err)
	}
	if rect == nil {
		return Rect{}, fmt.Errorf("no element matches %q", selector)
	}
	return *rect, nil
}

// ElementInViewport reports whether the element is fully inside the viewport.
func (i *Interactor) ElementInViewport(ctx context.Context, selector string) (bool, error) {
	var visible bool
	script := fmt.Sprintf(scriptElementInViewport, selector)
	if err := i.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, fmt.Errorf("check viewport for %q: %w", selector, err)
	}
	return visible, nil
}

// RandomPointIn returns a random viewport coordinate inside the visible part
// of the element. Errors when no part of the element is visible.
func (i *Interactor) RandomPointIn(ctx context.Context, selector string) (Point, error) {
	var pt *Point
	script := fmt.Sprintf(scriptRandomPointIn, selector)
	if err := i.run(ctx, chromedp.Evaluate(script, &pt)); err != nil {
		return Point{}, fmt.Errorf("pick point in %q: %w", selector, err)
	}
	if pt == nil {
		return Point{}, fmt.Errorf("element %q is not visible in the viewport", selector)
	}
	return *pt, nil
}

// ViewportSize returns the viewport dimensions in CSS pixels.
func (i *Interactor) ViewportSize(ctx context.Context) (width, height float64, err error) {
	var size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := i.run(ctx, chromedp.Evaluate(scriptViewportSize, &size)); err != nil {
		return 0, 0, fmt.Errorf("get viewport size: %w", err)
	}
	return size.Width, size.Height, nil
}
