// File: internal/devtools/manager.go
package devtools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultBufferSize = 256

var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("devtools manager already running")
	// ErrNotRunning is returned when Stop is called on a stopped manager.
	ErrNotRunning = errors.New("devtools manager not running")
)

// attachedTarget is one page target the manager listens on. A single worker
// goroutine per target keeps event handling FIFO.
type attachedTarget struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
	events chan interface{}
}

// Manager attaches to every page target of a browser and rewrites matching
// requests through the Fetch domain. New tabs opened while running are
// picked up automatically.
type Manager struct {
	allocCtx context.Context
	cfg      InterceptConfig
	logger   *zap.Logger

	mu           sync.Mutex
	running      bool
	anchorCtx    context.Context
	anchorCancel context.CancelFunc
	targets      map[target.ID]*attachedTarget
	wg           sync.WaitGroup
}

// NewManager creates a manager over an allocator context obtained from the
// driver. Nothing is attached until Start.
func NewManager(allocCtx context.Context, cfg InterceptConfig, logger *zap.Logger) *Manager {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Manager{
		allocCtx: allocCtx,
		cfg:      cfg,
		logger:   logger.Named("devtools"),
		targets:  make(map[target.ID]*attachedTarget),
	}
}

// Start attaches to the browser's page targets, enables interception on each
// and begins watching for new targets.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	browserCtx, browserCancel := chromedp.NewContext(m.allocCtx)

	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		browserCancel()
		return fmt.Errorf("could not list browser targets: %w", err)
	}

	var pages []*target.Info
	for _, info := range infos {
		if info.Type == "page" {
			pages = append(pages, info)
		}
	}
	if len(pages) == 0 {
		browserCancel()
		return errors.New("browser has no page targets to intercept")
	}

	m.anchorCtx = browserCtx
	m.anchorCancel = browserCancel
	m.running = true

	for _, info := range pages {
		if err := m.attachLocked(info.TargetID); err != nil {
			m.logger.Warn("Could not attach to target.",
				zap.String("target_id", string(info.TargetID)), zap.Error(err))
		}
	}

	// The first attached target doubles as the discovery channel: target
	// lifecycle events arrive on the session that enabled discovery.
	if err := m.enableDiscoveryLocked(pages[0].TargetID); err != nil {
		m.logger.Warn("Target discovery unavailable; new tabs will not be intercepted.",
			zap.Error(err))
	}

	m.logger.Info("Interception started.",
		zap.Int("targets", len(m.targets)),
		zap.Strings("patterns", m.cfg.Patterns),
		zap.Int("header_rules", len(m.cfg.HeaderRules)))
	return nil
}

// enableDiscoveryLocked turns on target discovery through an attached
// target's session. Caller holds m.mu.
func (m *Manager) enableDiscoveryLocked(anchor target.ID) error {
	at, ok := m.targets[anchor]
	if !ok {
		return fmt.Errorf("anchor target %s not attached", anchor)
	}

	chromedp.ListenTarget(at.ctx, func(ev interface{}) {
		created, ok := ev.(*target.EventTargetCreated)
		if !ok || created.TargetInfo == nil || created.TargetInfo.Type != "page" {
			return
		}
		id := created.TargetInfo.TargetID

		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.running {
			return
		}
		if err := m.attachLocked(id); err != nil {
			m.logger.Warn("Could not attach to new target.",
				zap.String("target_id", string(id)), zap.Error(err))
		}
	})

	return chromedp.Run(at.ctx, target.SetDiscoverTargets(true))
}

// attachLocked connects to one target, enables the Fetch domain and starts
// its worker. Caller holds m.mu.
func (m *Manager) attachLocked(id target.ID) error {
	if _, ok := m.targets[id]; ok {
		return nil
	}

	tabCtx, tabCancel := chromedp.NewContext(m.anchorCtx, chromedp.WithTargetID(id))

	at := &attachedTarget{
		id:     id,
		ctx:    tabCtx,
		cancel: tabCancel,
		events: make(chan interface{}, m.cfg.BufferSize),
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev.(type) {
		case *fetch.EventRequestPaused, *fetch.EventAuthRequired:
		default:
			return
		}
		select {
		case at.events <- ev:
		case <-tabCtx.Done():
		default:
			// Queue full. Continue unmodified rather than stalling the
			// event loop or dropping the request.
			m.logger.Warn("Event queue full; passing request through.",
				zap.String("target_id", string(id)))
			if paused, ok := ev.(*fetch.EventRequestPaused); ok {
				go m.continueRaw(at, paused.RequestID)
			}
		}
	})

	enable := fetch.Enable().WithPatterns(m.patterns())
	if m.cfg.Auth != nil {
		enable = enable.WithHandleAuthRequests(true)
	}
	if err := chromedp.Run(tabCtx, enable); err != nil {
		tabCancel()
		return fmt.Errorf("could not enable fetch domain: %w", err)
	}

	m.targets[id] = at
	m.wg.Add(1)
	go m.serve(at)

	m.logger.Debug("Attached to target.", zap.String("target_id", string(id)))
	return nil
}

func (m *Manager) patterns() []*fetch.RequestPattern {
	patterns := m.cfg.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	out := make([]*fetch.RequestPattern, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, &fetch.RequestPattern{URLPattern: p})
	}
	return out
}

// serve drains one target's event queue in order.
func (m *Manager) serve(at *attachedTarget) {
	defer m.wg.Done()
	for {
		select {
		case <-at.ctx.Done():
			return
		case ev := <-at.events:
			switch ev := ev.(type) {
			case *fetch.EventRequestPaused:
				m.handleRequestPaused(at, ev)
			case *fetch.EventAuthRequired:
				m.handleAuthRequired(at, ev)
			}
		}
	}
}

// handleRequestPaused rewrites and releases one paused request. Handler
// failures downgrade to an unmodified continue; the request is never left
// hanging.
func (m *Manager) handleRequestPaused(at *attachedTarget, ev *fetch.EventRequestPaused) {
	action := continueParams(ev, m.cfg.HeaderRules, m.cfg.BodyRewriter)

	if err := m.runOnTarget(at, action); err != nil {
		m.logger.Warn("Could not continue rewritten request; passing through.",
			zap.String("request_id", string(ev.RequestID)),
			zap.String("url", ev.Request.URL),
			zap.Error(err))
		m.continueRaw(at, ev.RequestID)
	}
}

// handleAuthRequired answers an auth challenge with configured credentials,
// or lets the browser handle it when none are set.
func (m *Manager) handleAuthRequired(at *attachedTarget, ev *fetch.EventAuthRequired) {
	response := &fetch.AuthChallengeResponse{
		Response: fetch.AuthChallengeResponseResponseDefault,
	}
	if m.cfg.Auth != nil {
		response = &fetch.AuthChallengeResponse{
			Response: fetch.AuthChallengeResponseResponseProvideCredentials,
			Username: m.cfg.Auth.Username,
			Password: m.cfg.Auth.Password,
		}
	}

	if err := m.runOnTarget(at, fetch.ContinueWithAuth(ev.RequestID, response)); err != nil {
		m.logger.Warn("Could not answer auth challenge.",
			zap.String("request_id", string(ev.RequestID)), zap.Error(err))
	}
}

// continueRaw releases a request without modifications.
func (m *Manager) continueRaw(at *attachedTarget, id fetch.RequestID) {
	if err := m.runOnTarget(at, fetch.ContinueRequest(id)); err != nil {
		m.logger.Debug("Could not continue request unmodified.",
			zap.String("request_id", string(id)), zap.Error(err))
	}
}

// runOnTarget executes one CDP action on the target's session. Context
// cancellation and stale interception IDs are expected during teardown and
// navigation, not errors.
func (m *Manager) runOnTarget(at *attachedTarget, action chromedp.Action) error {
	err := chromedp.Run(at.ctx, action)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	if strings.Contains(err.Error(), "Invalid InterceptionId") {
		return nil
	}
	return err
}

// Stop detaches from every target and waits for the workers, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	targets := m.targets
	m.targets = make(map[target.ID]*attachedTarget)
	anchorCancel := m.anchorCancel
	m.anchorCancel = nil
	m.anchorCtx = nil
	m.mu.Unlock()

	m.logger.Info("Stopping interception.", zap.Int("targets", len(targets)))

	for _, at := range targets {
		at.cancel()
	}
	if anchorCancel != nil {
		anchorCancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for interception workers: %w", ctx.Err())
	}
}

// drainTimeout guards tests and callers that stop without a deadline.
const drainTimeout = 10 * time.Second

// Close is Stop with a default deadline, for defer call sites.
func (m *Manager) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	err := m.Stop(ctx)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}
