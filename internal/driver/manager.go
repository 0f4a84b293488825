// File: internal/driver/manager.go

// Package driver owns the browser process and its DevTools connection. A
// Manager launches (or attaches to) one browser and hands out Sessions, each
// bound to a single page target.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hexfn/chauffeur/internal/browsers"
	"github.com/hexfn/chauffeur/internal/config"
	"github.com/hexfn/chauffeur/internal/flags"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotStarted is returned when an operation needs a running browser.
	ErrNotStarted = errors.New("driver manager not started")
	// ErrAlreadyStarted is returned when Start is called on a running manager.
	ErrAlreadyStarted = errors.New("driver manager already started")
)

const versionProbeTimeout = 2 * time.Second

// Manager handles the browser process lifecycle and session creation.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	mu          sync.Mutex
	started     bool
	cmd         *exec.Cmd
	binary      string
	kind        browsers.Kind
	port        int
	profileDir  string
	ownsProfile bool
	allocCtx    context.Context
	allocCancel context.CancelFunc

	sessionMu sync.RWMutex
	sessions  map[string]*Session
	wg        sync.WaitGroup // balances live sessions so Shutdown can wait for them
}

// NewManager creates a manager. No browser is touched until Start or Attach.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("driver"),
		sessions: make(map[string]*Session),
	}
}

// Start resolves the browser binary, picks a debugging port, launches the
// process and connects the allocator. When the configured port already hosts
// a live DevTools endpoint (a previous run with the same profile), the
// manager attaches to it instead of launching a second browser.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}

	browser, err := m.resolveBrowser()
	if err != nil {
		return err
	}
	m.binary = browser.Path
	m.kind = browser.Kind

	// Reuse a still-running browser from a previous session on the same port.
	if p := m.cfg.Browser.DebuggingPort; p > 0 && endpointAlive(ctx, p) {
		m.logger.Info("Reusing running browser on configured debugging port.",
			zap.Int("port", p))
		return m.connectLocked(ctx, p)
	}

	port, err := pickPort(m.cfg.Browser.DebuggingPort)
	if err != nil {
		return fmt.Errorf("could not pick debugging port: %w", err)
	}
	m.port = port

	profileDir := m.cfg.Browser.ProfileDir
	if profileDir == "" {
		profileDir, err = os.MkdirTemp("", "chauffeur-profile-*")
		if err != nil {
			return fmt.Errorf("could not create profile dir: %w", err)
		}
		m.ownsProfile = true
	}
	m.profileDir = profileDir

	args, err := m.launchArgs(port, profileDir)
	if err != nil {
		m.cleanupProfileLocked()
		return err
	}

	m.logger.Info("Launching browser.",
		zap.String("kind", string(browser.Kind)),
		zap.String("binary", browser.Path),
		zap.Int("port", port))

	cmd := exec.Command(browser.Path, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		m.cleanupProfileLocked()
		return fmt.Errorf("could not start %s: %w", browser.Path, err)
	}
	m.cmd = cmd

	if err := m.waitReady(ctx, port); err != nil {
		m.abortLaunchLocked()
		return err
	}

	if err := m.connectLocked(ctx, port); err != nil {
		m.abortLaunchLocked()
		return err
	}
	return nil
}

// abortLaunchLocked kills a browser this manager launched and removes the
// owned profile after a failed startup. Caller holds m.mu.
func (m *Manager) abortLaunchLocked() {
	if m.cmd != nil && m.cmd.Process != nil {
		m.cmd.Process.Kill()
		m.cmd.Wait()
	}
	m.cmd = nil
	m.cleanupProfileLocked()
}

// Attach connects to an already-running browser's DevTools endpoint without
// launching a process. The browser is not killed on Shutdown.
func (m *Manager) Attach(ctx context.Context, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	if !endpointAlive(ctx, port) {
		return fmt.Errorf("no DevTools endpoint listening on port %d", port)
	}
	m.logger.Info("Attaching to running browser.", zap.Int("port", port))
	return m.connectLocked(ctx, port)
}

// connectLocked resolves the websocket debugger URL and builds the remote
// allocator. Caller holds m.mu.
func (m *Manager) connectLocked(ctx context.Context, port int) error {
	wsURL, err := debuggerURL(ctx, port)
	if err != nil {
		return err
	}
	m.port = port
	m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(
		context.Background(), wsURL, chromedp.NoModifyURL)
	m.started = true
	m.logger.Info("Connected to browser.", zap.String("debugger_url", wsURL))
	return nil
}

// resolveBrowser honors an explicit binary path, falling back to discovery.
func (m *Manager) resolveBrowser() (browsers.Browser, error) {
	kind := browsers.DefaultKind()
	if m.cfg.Browser.Kind != "" {
		parsed, err := browsers.ParseKind(m.cfg.Browser.Kind)
		if err != nil {
			return browsers.Browser{}, err
		}
		kind = parsed
	}
	if path := m.cfg.Browser.Binary; path != "" {
		if _, err := os.Stat(path); err != nil {
			return browsers.Browser{}, fmt.Errorf("configured browser binary %q: %w", path, err)
		}
		return browsers.Browser{Kind: kind, Path: path}, nil
	}
	return browsers.Find(m.logger, kind)
}

// launchArgs renders the configured launch spec into the command line for
// the resolved browser family.
func (m *Manager) launchArgs(port int, profileDir string) ([]string, error) {
	var set *flags.Set
	if m.kind.IsBlink() {
		set = flags.NewBlinkSet()
	} else {
		set = flags.NewGeckoSet()
	}

	spec := flags.LaunchSpec{
		Headless:       m.cfg.Browser.Headless,
		MuteAudio:      m.cfg.Browser.MuteAudio,
		HideAutomation: m.cfg.Browser.HideAutomation,
		ProfileDir:     profileDir,
		DebuggingPort:  port,
		Proxy:          m.cfg.Browser.Proxy,
		UserAgent:      m.cfg.Browser.UserAgent,
		WindowRect:     m.cfg.Browser.WindowRect,
		StartPage:      m.cfg.Browser.StartPage,
	}
	if err := flags.ApplySpec(set, spec); err != nil {
		return nil, fmt.Errorf("could not build launch arguments: %w", err)
	}

	args := set.Args()
	return append(args, m.cfg.Browser.ExtraArgs...), nil
}

// waitReady polls the DevTools version endpoint until the browser answers.
func (m *Manager) waitReady(ctx context.Context, port int) error {
	deadline := time.Now().Add(m.cfg.Network.ReadyTimeout)
	interval := m.cfg.Network.ReadyPollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	for {
		if endpointAlive(ctx, port) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser did not become ready on port %d within %s",
				port, m.cfg.Network.ReadyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// NewSession opens a fresh page target and wraps it in a Session.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	allocCtx := m.allocCtx
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Materialize the target before handing the session out.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("could not open browser target: %w", err)
	}

	session := newSession(tabCtx, tabCancel, allocCtx, m.cfg, m.logger)

	m.wg.Add(1)
	session.onClose = func() {
		m.sessionMu.Lock()
		delete(m.sessions, session.ID())
		m.sessionMu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed.", zap.String("session_id", session.ID()))
	}

	m.sessionMu.Lock()
	m.sessions[session.ID()] = session
	m.sessionMu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Sessions returns the live sessions, newest state wins.
func (m *Manager) Sessions() []*Session {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// DebuggingPort returns the port of the connected DevTools endpoint.
func (m *Manager) DebuggingPort() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return 0, ErrNotStarted
	}
	return m.port, nil
}

// AllocatorContext exposes the allocator for components that attach their
// own targets, like the devtools interception manager.
func (m *Manager) AllocatorContext() (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil, ErrNotStarted
	}
	return m.allocCtx, nil
}

// Shutdown closes every session, disconnects the allocator and kills the
// launched process. Attached browsers are left running. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cmd := m.cmd
	m.cmd = nil
	allocCancel := m.allocCancel
	m.allocCancel = nil
	m.mu.Unlock()

	m.logger.Info("Shutting down driver manager.")

	g, closeCtx := errgroup.WithContext(ctx)
	for _, s := range m.Sessions() {
		s := s
		g.Go(func() error {
			if err := s.Close(closeCtx); err != nil {
				m.logger.Warn("Error closing session during shutdown.",
					zap.String("session_id", s.ID()), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close.", zap.Error(ctx.Err()))
	}

	if allocCancel != nil {
		allocCancel()
	}

	var shutdownErr error
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			shutdownErr = fmt.Errorf("could not kill browser process: %w", err)
		}
		cmd.Wait()
	}

	m.mu.Lock()
	m.cleanupProfileLocked()
	m.mu.Unlock()

	m.logger.Info("Driver manager shutdown complete.")
	return shutdownErr
}

// Restart shuts the browser down and starts it again with the same settings.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Shutdown(ctx); err != nil {
		m.logger.Warn("Shutdown reported an error during restart.", zap.Error(err))
	}
	return m.Start(ctx)
}

// cleanupProfileLocked removes a temp profile dir we created. Caller holds m.mu.
func (m *Manager) cleanupProfileLocked() {
	if m.ownsProfile && m.profileDir != "" {
		os.RemoveAll(m.profileDir)
	}
	m.profileDir = ""
	m.ownsProfile = false
}

// pickPort returns the requested port, or an ephemeral one when requested is
// zero or already taken.
func pickPort(requested int) (int, error) {
	if requested > 0 {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", requested))
		if err == nil {
			l.Close()
			return requested, nil
		}
		// Taken by something that is not a DevTools endpoint; fall through.
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port, nil
}

// endpointAlive reports whether a DevTools HTTP endpoint answers on the port.
func endpointAlive(ctx context.Context, port int) bool {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		fmt.Sprintf("http://127.0.0.1:%d/json/version", port), nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// debuggerURL fetches the websocket debugger URL from the version endpoint.
func debuggerURL(ctx context.Context, port int) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet,
		fmt.Sprintf("http://127.0.0.1:%d/json/version", port), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not query DevTools version endpoint: %w", err)
	}
	defer resp.Body.Close()

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("could not decode DevTools version response: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("DevTools endpoint on port %d returned no debugger URL", port)
	}
	return version.WebSocketDebuggerURL, nil
}
