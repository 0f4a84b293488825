// File: internal/driver/manager_test.go
package driver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hexfn/chauffeur/internal/browsers"
	"github.com/hexfn/chauffeur/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Network.ReadyTimeout = 2 * time.Second
	cfg.Network.ReadyPollInterval = 20 * time.Millisecond
	return NewManager(cfg, zaptest.NewLogger(t))
}

// fakeDevTools serves the version endpoint the way a real browser does.
func fakeDevTools(t *testing.T) (*httptest.Server, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Browser":"Chrome/124.0.0.0","webSocketDebuggerUrl":"ws://%s/devtools/browser/abc"}`, r.Host)
	}))
	t.Cleanup(srv.Close)

	port := srv.Listener.Addr().(*net.TCPAddr).Port
	return srv, port
}

func TestAbortLaunchKillsProcessAndProfile(t *testing.T) {
	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}

	m := testManager(t)

	profileDir, err := os.MkdirTemp("", "chauffeur-profile-*")
	require.NoError(t, err)

	cmd := exec.Command(sleepBin, "60")
	require.NoError(t, cmd.Start())

	m.mu.Lock()
	m.cmd = cmd
	m.profileDir = profileDir
	m.ownsProfile = true
	m.abortLaunchLocked()
	m.mu.Unlock()

	assert.Nil(t, m.cmd)
	assert.NoDirExists(t, profileDir)
	// Wait already ran inside the abort, so the process is reaped.
	require.NotNil(t, cmd.ProcessState)
	assert.False(t, cmd.ProcessState.Success())
}

func TestNewSessionBeforeStart(t *testing.T) {
	m := testManager(t)
	_, err := m.NewSession(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestDebuggingPortBeforeStart(t *testing.T) {
	m := testManager(t)
	_, err := m.DebuggingPort()
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = m.AllocatorContext()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestShutdownBeforeStartIsNoop(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestAttachNoEndpoint(t *testing.T) {
	// Grab a port and close it again so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	m := testManager(t)
	err = m.Attach(context.Background(), port)
	assert.Error(t, err)
}

func TestAttachAndShutdown(t *testing.T) {
	_, port := fakeDevTools(t)

	m := testManager(t)
	require.NoError(t, m.Attach(context.Background(), port))

	got, err := m.DebuggingPort()
	require.NoError(t, err)
	assert.Equal(t, port, got)

	allocCtx, err := m.AllocatorContext()
	require.NoError(t, err)
	assert.NotNil(t, allocCtx)

	// Starting or attaching twice is rejected.
	assert.ErrorIs(t, m.Attach(context.Background(), port), ErrAlreadyStarted)
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, m.Shutdown(context.Background()))
	_, err = m.DebuggingPort()
	assert.ErrorIs(t, err, ErrNotStarted)

	// Idempotent.
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestPickPort(t *testing.T) {
	t.Run("requested free port is used", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		want := l.Addr().(*net.TCPAddr).Port
		require.NoError(t, l.Close())

		got, err := pickPort(want)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("taken port falls back to ephemeral", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer l.Close()
		taken := l.Addr().(*net.TCPAddr).Port

		got, err := pickPort(taken)
		require.NoError(t, err)
		assert.NotEqual(t, taken, got)
		assert.Greater(t, got, 0)
	})

	t.Run("zero means ephemeral", func(t *testing.T) {
		got, err := pickPort(0)
		require.NoError(t, err)
		assert.Greater(t, got, 0)
	})
}

func TestEndpointAlive(t *testing.T) {
	_, port := fakeDevTools(t)
	assert.True(t, endpointAlive(context.Background(), port))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	assert.False(t, endpointAlive(context.Background(), dead))
}

func TestDebuggerURL(t *testing.T) {
	t.Run("resolves websocket url", func(t *testing.T) {
		_, port := fakeDevTools(t)
		wsURL, err := debuggerURL(context.Background(), port)
		require.NoError(t, err)
		assert.Contains(t, wsURL, "ws://")
		assert.Contains(t, wsURL, "/devtools/browser/")
	})

	t.Run("missing url is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"Browser":"Chrome/124.0.0.0"}`)
		}))
		defer srv.Close()
		port := srv.Listener.Addr().(*net.TCPAddr).Port

		_, err := debuggerURL(context.Background(), port)
		assert.Error(t, err)
	})
}

func TestLaunchArgs(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Browser.Headless = true
	cfg.Browser.MuteAudio = true
	cfg.Browser.HideAutomation = true
	cfg.Browser.UserAgent = "Agent/1.0"
	cfg.Browser.ExtraArgs = []string{"--disable-extensions"}

	m := NewManager(cfg, zaptest.NewLogger(t))
	m.kind = browsers.KindChrome

	args, err := m.launchArgs(9222, "/tmp/profile")
	require.NoError(t, err)

	assert.Contains(t, args, "--remote-debugging-port=9222")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.Contains(t, args, "--headless=new")
	assert.Contains(t, args, "--mute-audio")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.Contains(t, args, "--user-agent=Agent/1.0")
	// Extra args always come last.
	assert.Equal(t, "--disable-extensions", args[len(args)-1])
	// Start page rides as the final rendered flag before extras.
	assert.Contains(t, args, "about:blank")
}

func TestLaunchArgsGecko(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Browser.Kind = string(browsers.KindFirefox)
	cfg.Browser.Headless = true

	m := NewManager(cfg, zaptest.NewLogger(t))
	m.kind = browsers.KindFirefox

	args, err := m.launchArgs(6000, "/tmp/ff")
	require.NoError(t, err)

	assert.Contains(t, args, "-headless")
	assert.Contains(t, args, "-profile")
	assert.Contains(t, args, "/tmp/ff")
	assert.NotContains(t, args, "--user-data-dir=/tmp/ff")
}
