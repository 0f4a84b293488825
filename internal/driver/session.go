// File: internal/driver/session.go
package driver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hexfn/chauffeur/internal/config"
)

// tab is one attached page target.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session wraps one or more page targets of a running browser. Commands go
// to the current target; SwitchToTarget changes which one that is.
type Session struct {
	id       string
	allocCtx context.Context
	logger   *zap.Logger
	cfg      *config.Config

	interactor *Interactor
	onClose    func()

	mu       sync.Mutex
	isClosed bool
	current  target.ID
	tabs     map[target.ID]*tab
}

func newSession(
	tabCtx context.Context,
	tabCancel context.CancelFunc,
	allocCtx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
) *Session {
	sessionID := uuid.New().String()

	s := &Session{
		id:       sessionID,
		allocCtx: allocCtx,
		logger:   logger.With(zap.String("session_id", sessionID)),
		cfg:      cfg,
		tabs:     make(map[target.ID]*tab),
	}

	targetID := chromedp.FromContext(tabCtx).Target.TargetID
	s.tabs[targetID] = &tab{ctx: tabCtx, cancel: tabCancel}
	s.current = targetID

	s.interactor = NewInteractor(s.logger, s.runActions)
	return s
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Interactor returns the element-level helper bound to this session.
func (s *Session) Interactor() *Interactor {
	return s.interactor
}

// CurrentTarget returns the ID of the target commands currently go to.
func (s *Session) CurrentTarget() target.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// runActions executes chromedp actions against the current target, honoring
// both the session lifetime and the caller's context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.id)
	}
	t, ok := s.tabs[s.current]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s has no current target", s.id)
	}

	runCtx, cancel := combineContext(t.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL in the current target and waits for the load event,
// bounded by the configured navigation timeout.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()

	if err := s.runActions(navCtx, chromedp.Navigate(rawURL)); err != nil {
		return fmt.Errorf("navigate to %s: %w", rawURL, err)
	}
	return nil
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()

	if err := s.runActions(navCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// Stop halts loading of the current page without waiting for it to finish.
func (s *Session) Stop(ctx context.Context) error {
	return s.runActions(ctx, chromedp.Evaluate(scriptStopLoading, nil))
}

// CurrentURL returns the URL of the current page.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.runActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("get current url: %w", err)
	}
	return loc, nil
}

// Title returns the title of the current page.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.runActions(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("get title: %w", err)
	}
	return title, nil
}

// HTML returns the serialized DOM of the current page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("get page html: %w", err)
	}
	return html, nil
}

// ExecuteScript evaluates JavaScript in the current document and optionally
// unmarshals the result into res. A nil res discards the result.
func (s *Session) ExecuteScript(ctx context.Context, script string, res interface{}) error {
	return s.runActions(ctx, chromedp.Evaluate(script, res))
}

// Links returns the absolute href of every anchor on the current page.
func (s *Session) Links(ctx context.Context) ([]string, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	base, err := s.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	return extractLinks(html, base)
}

// OpenTab creates a new page target. An empty URL opens a blank tab. The new
// target does not become current until SwitchToTarget.
func (s *Session) OpenTab(ctx context.Context, rawURL string) (target.ID, error) {
	if rawURL == "" {
		rawURL = "about:blank"
	}
	var id target.ID
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		id, err = target.CreateTarget(rawURL).Do(c)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("open tab: %w", err)
	}
	s.logger.Debug("Opened tab.", zap.String("target_id", string(id)))
	return id, nil
}

// Targets lists the page targets of the connected browser.
func (s *Session) Targets(ctx context.Context) ([]*target.Info, error) {
	return s.listTargets(ctx, "page")
}

// Frames lists the out-of-process iframe targets of the connected browser.
// A frame can be made current with SwitchToTarget to run commands inside it.
func (s *Session) Frames(ctx context.Context) ([]*target.Info, error) {
	return s.listTargets(ctx, "iframe")
}

func (s *Session) listTargets(ctx context.Context, kind string) ([]*target.Info, error) {
	s.mu.Lock()
	t, ok := s.tabs[s.current]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %s has no current target", s.id)
	}

	runCtx, cancel := combineContext(t.ctx, ctx)
	defer cancel()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return filterTargets(infos, kind), nil
}

// filterTargets keeps targets of one type, reusing the input's backing array.
func filterTargets(infos []*target.Info, kind string) []*target.Info {
	kept := infos[:0]
	for _, info := range infos {
		if info.Type == kind {
			kept = append(kept, info)
		}
	}
	return kept
}

// SwitchToTarget makes the given target current, attaching to it if this
// session has not seen it before.
func (s *Session) SwitchToTarget(ctx context.Context, id target.ID) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.id)
	}
	if _, ok := s.tabs[id]; ok {
		s.current = id
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(s.allocCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return fmt.Errorf("attach to target %s: %w", id, err)
	}

	s.mu.Lock()
	s.tabs[id] = &tab{ctx: tabCtx, cancel: tabCancel}
	s.current = id
	s.mu.Unlock()

	s.logger.Debug("Switched target.", zap.String("target_id", string(id)))
	return nil
}

// CloseTab closes a target. Closing the current target moves current to any
// other attached tab.
func (s *Session) CloseTab(ctx context.Context, id target.ID) error {
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return target.CloseTarget(id).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("close tab %s: %w", id, err)
	}

	s.mu.Lock()
	if t, ok := s.tabs[id]; ok {
		t.cancel()
		delete(s.tabs, id)
	}
	if s.current == id {
		s.current = ""
		for other := range s.tabs {
			s.current = other
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// WindowRect returns the position and size of the OS window hosting the
// current target.
func (s *Session) WindowRect(ctx context.Context) (config.WindowRect, error) {
	var rect config.WindowRect
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		_, bounds, err := cdpbrowser.GetWindowForTarget().Do(c)
		if err != nil {
			return err
		}
		rect = config.WindowRect{
			X:      int(bounds.Left),
			Y:      int(bounds.Top),
			Width:  int(bounds.Width),
			Height: int(bounds.Height),
		}
		return nil
	}))
	if err != nil {
		return config.WindowRect{}, fmt.Errorf("get window rect: %w", err)
	}
	return rect, nil
}

// SetWindowRect moves and resizes the OS window hosting the current target.
func (s *Session) SetWindowRect(ctx context.Context, rect config.WindowRect) error {
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		windowID, _, err := cdpbrowser.GetWindowForTarget().Do(c)
		if err != nil {
			return err
		}
		bounds := &cdpbrowser.Bounds{
			Left:   int64(rect.X),
			Top:    int64(rect.Y),
			Width:  int64(rect.Width),
			Height: int64(rect.Height),
		}
		return cdpbrowser.SetWindowBounds(windowID, bounds).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("set window rect: %w", err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.runActions(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close detaches from every target and runs the manager's cleanup callback.
// Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	tabs := make([]*tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.tabs = make(map[target.ID]*tab)
	s.mu.Unlock()

	s.logger.Debug("Closing session.")

	for _, t := range tabs {
		t.cancel()
	}

	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// extractLinks pulls every anchor href out of an HTML document and resolves
// it against the page URL. Fragment-only and unparsable hrefs are skipped.
func extractLinks(html, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links, nil
}
