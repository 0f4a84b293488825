// File: internal/flags/flags_test.go
package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfn/chauffeur/internal/config"
)

func TestApplyValidation(t *testing.T) {
	testCases := []struct {
		name    string
		flag    string
		value   string
		wantErr error
	}{
		{name: "unknown flag", flag: "does-not-exist", value: "x", wantErr: ErrUnknownFlag},
		{name: "empty value rejected", flag: FlagUserAgent, value: "  ", wantErr: ErrInvalidFlagValue},
		{name: "non numeric port", flag: FlagDebuggingPort, value: "abc", wantErr: ErrInvalidFlagValue},
		{name: "port out of range", flag: FlagDebuggingPort, value: "70000", wantErr: ErrInvalidFlagValue},
		{name: "valid port", flag: FlagDebuggingPort, value: "9222"},
		{name: "switch ignores value", flag: FlagMuteAudio, value: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewBlinkSet()
			err := s.Apply(tc.flag, tc.value)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.False(t, s.Has(tc.flag))
				return
			}
			require.NoError(t, err)
			assert.True(t, s.Has(tc.flag))
		})
	}
}

func TestArgsDeterministicOrdering(t *testing.T) {
	// Apply in scrambled order twice; Args must come out identical and
	// sorted by flag name with positionals last.
	build := func(order []string) []string {
		s := NewBlinkSet()
		for _, name := range order {
			switch name {
			case FlagStartPage:
				require.NoError(t, s.Apply(FlagStartPage, "https://example.com"))
			case FlagDebuggingPort:
				require.NoError(t, s.Apply(FlagDebuggingPort, "9222"))
			default:
				require.NoError(t, s.Switch(name))
			}
		}
		return s.Args()
	}

	first := build([]string{FlagStartPage, FlagMuteAudio, FlagDebuggingPort, FlagHeadless})
	second := build([]string{FlagHeadless, FlagDebuggingPort, FlagMuteAudio, FlagStartPage})

	want := []string{
		"--remote-debugging-port=9222",
		"--headless=new",
		"--mute-audio",
		"https://example.com",
	}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

func TestRemoveAndClear(t *testing.T) {
	s := NewBlinkSet()
	require.NoError(t, s.Switch(FlagHeadless))
	require.NoError(t, s.Apply(FlagUserAgent, "Agent/1.0"))

	s.Remove(FlagHeadless)
	assert.False(t, s.Has(FlagHeadless))
	v, ok := s.Value(FlagUserAgent)
	assert.True(t, ok)
	assert.Equal(t, "Agent/1.0", v)

	// Removing something never applied must not panic.
	s.Remove(FlagHeadless)

	s.Clear()
	assert.Empty(t, s.Args())
	assert.False(t, s.Has(FlagUserAgent))

	// Definitions survive a Clear.
	require.NoError(t, s.Switch(FlagHeadless))
	assert.Equal(t, []string{"--headless=new"}, s.Args())
}

func TestCapabilities(t *testing.T) {
	s := NewBlinkSet()
	require.NoError(t, s.Apply(FlagDebuggerAddress, "127.0.0.1:9222"))
	require.NoError(t, s.Switch(FlagHeadless))

	caps := s.Capabilities()
	assert.Equal(t, map[string]string{"debuggerAddress": "127.0.0.1:9222"}, caps)

	// Capability entries never leak into the argument list.
	assert.Equal(t, []string{"--headless=new"}, s.Args())
}

func TestPickProxy(t *testing.T) {
	assert.Empty(t, PickProxy(nil))
	assert.Equal(t, "http://one:8080", PickProxy([]string{"http://one:8080"}))

	pool := []string{"http://one:8080", "http://two:8080", "http://three:8080"}
	for i := 0; i < 50; i++ {
		assert.Contains(t, pool, PickProxy(pool))
	}
}

func TestApplySpecBlink(t *testing.T) {
	s := NewBlinkSet()
	err := ApplySpec(s, LaunchSpec{
		Headless:       true,
		MuteAudio:      true,
		HideAutomation: true,
		ProfileDir:     "/tmp/profile",
		DebuggingPort:  9222,
		UserAgent:      "Agent/1.0",
		WindowRect:     config.WindowRect{X: 10, Y: 20, Width: 1280, Height: 720},
		StartPage:      "https://example.com",
	})
	require.NoError(t, err)

	want := []string{
		"--remote-debugging-port=9222",
		"--headless=new",
		"--disable-blink-features=AutomationControlled",
		"--mute-audio",
		"--no-first-run",
		"--no-service-autorun",
		"--password-store=basic",
		"--user-data-dir=/tmp/profile",
		"--user-agent=Agent/1.0",
		"--window-position=10,20",
		"--window-size=1280,720",
		"https://example.com",
	}
	assert.Equal(t, want, s.Args())
	assert.Equal(t, map[string]string{"debuggerAddress": "127.0.0.1:9222"}, s.Capabilities())
}

func TestApplySpecGecko(t *testing.T) {
	s := NewGeckoSet()
	err := ApplySpec(s, LaunchSpec{
		Headless:       true,
		MuteAudio:      true,
		HideAutomation: true, // not defined for Gecko, must be skipped
		ProfileDir:     "/tmp/ff-profile",
		DebuggingPort:  6000,
		Proxy:          []string{"http://one:8080"}, // likewise skipped
		UserAgent:      "Agent/1.0",
		WindowRect:     config.WindowRect{Width: 1024, Height: 768},
		StartPage:      "https://example.com",
	})
	require.NoError(t, err)

	want := []string{
		"--start-debugger-server", "6000",
		"-headless",
		"--mute-audio",
		"-profile", "/tmp/ff-profile",
		"--user-agent", "Agent/1.0",
		"--window-size", "1024,768",
		"https://example.com",
	}
	assert.Equal(t, want, s.Args())
	assert.Empty(t, s.Capabilities())
}

func TestApplySpecZeroLeavesSetUntouched(t *testing.T) {
	s := NewBlinkSet()
	require.NoError(t, s.Switch(FlagDisableGPU))

	require.NoError(t, ApplySpec(s, LaunchSpec{}))
	assert.Equal(t, []string{"--disable-gpu"}, s.Args())
}

func TestApplySpecRejectsBadPort(t *testing.T) {
	s := NewBlinkSet()
	err := ApplySpec(s, LaunchSpec{DebuggingPort: 99999})
	assert.ErrorIs(t, err, ErrInvalidFlagValue)
}

func TestDefineOverride(t *testing.T) {
	s := NewBlinkSet()
	s.Define(Definition{Name: FlagHeadless, Template: "--headless=old", Kind: KindSwitch})
	require.NoError(t, s.Switch(FlagHeadless))
	assert.Equal(t, []string{"--headless=old"}, s.Args())
}
