// File: internal/flags/blink.go
package flags

import (
	"errors"
	"fmt"

	"github.com/hexfn/chauffeur/internal/config"
)

// Flag names shared by every browser family. The per-family tables map
// these names onto the family's actual command line syntax.
const (
	FlagDebuggingPort   = "debugging-port"
	FlagProfileDir      = "profile-dir"
	FlagHeadless        = "headless"
	FlagMuteAudio       = "mute-audio"
	FlagUserAgent       = "user-agent"
	FlagProxyServer     = "proxy-server"
	FlagWindowSize      = "window-size"
	FlagWindowPosition  = "window-position"
	FlagStartPage       = "start-page"
	FlagDebuggerAddress = "debugger-address"

	FlagNoFirstRun       = "no-first-run"
	FlagNoServiceAutorun = "no-service-autorun"
	FlagPasswordStore    = "password-store"
	FlagHideAutomation   = "hide-automation"
	FlagDisableGPU       = "disable-gpu"
	FlagNoSandbox        = "no-sandbox"
	FlagDisableDevShm    = "disable-dev-shm-usage"
)

// blinkDefinitions is the flag table for the Chromium family (Chrome, Edge,
// Yandex, Brave, Chromium).
var blinkDefinitions = []Definition{
	{Name: FlagDebuggingPort, Template: "--remote-debugging-port={value}", Kind: KindValue, Validate: Port},
	{Name: FlagProfileDir, Template: "--user-data-dir={value}", Kind: KindValue},
	{Name: FlagHeadless, Template: "--headless=new", Kind: KindSwitch},
	{Name: FlagMuteAudio, Template: "--mute-audio", Kind: KindSwitch},
	{Name: FlagUserAgent, Template: "--user-agent={value}", Kind: KindValue},
	{Name: FlagProxyServer, Template: "--proxy-server={value}", Kind: KindValue},
	{Name: FlagWindowSize, Template: "--window-size={value}", Kind: KindValue},
	{Name: FlagWindowPosition, Template: "--window-position={value}", Kind: KindValue},
	{Name: FlagStartPage, Kind: KindPositional},
	{Name: FlagDebuggerAddress, Template: "debuggerAddress", Kind: KindCapability},

	{Name: FlagNoFirstRun, Template: "--no-first-run", Kind: KindSwitch},
	{Name: FlagNoServiceAutorun, Template: "--no-service-autorun", Kind: KindSwitch},
	{Name: FlagPasswordStore, Template: "--password-store=basic", Kind: KindSwitch},
	{Name: FlagHideAutomation, Template: "--disable-blink-features=AutomationControlled", Kind: KindSwitch},
	{Name: FlagDisableGPU, Template: "--disable-gpu", Kind: KindSwitch},
	{Name: FlagNoSandbox, Template: "--no-sandbox", Kind: KindSwitch},
	{Name: FlagDisableDevShm, Template: "--disable-dev-shm-usage", Kind: KindSwitch},
}

// NewBlinkSet returns a Set understanding Chromium-family switches.
func NewBlinkSet() *Set {
	return NewSet(blinkDefinitions)
}

// LaunchSpec is the browser-independent launch configuration a caller wants
// realized as flags.
type LaunchSpec struct {
	Headless       bool
	MuteAudio      bool
	HideAutomation bool
	ProfileDir     string
	DebuggingPort  int
	Proxy          []string
	UserAgent      string
	WindowRect     config.WindowRect
	StartPage      string
}

// ApplySpec maps a LaunchSpec onto a Set. Zero-valued fields leave their
// flags untouched, so a LaunchSpec can be layered over existing state. Flags
// the target family does not define are skipped, letting the same LaunchSpec
// drive both Blink and Gecko sets.
func ApplySpec(s *Set, spec LaunchSpec) error {
	if spec.DebuggingPort > 0 {
		if err := applyIfDefined(s, FlagDebuggingPort, fmt.Sprintf("%d", spec.DebuggingPort)); err != nil {
			return err
		}
		if err := applyIfDefined(s, FlagDebuggerAddress, fmt.Sprintf("127.0.0.1:%d", spec.DebuggingPort)); err != nil {
			return err
		}
	}
	if spec.ProfileDir != "" {
		if err := applyIfDefined(s, FlagProfileDir, spec.ProfileDir); err != nil {
			return err
		}
	}
	if spec.Headless {
		if err := applyIfDefined(s, FlagHeadless, ""); err != nil {
			return err
		}
	}
	if spec.MuteAudio {
		if err := applyIfDefined(s, FlagMuteAudio, ""); err != nil {
			return err
		}
	}
	if spec.HideAutomation {
		for _, name := range []string{FlagHideAutomation, FlagNoFirstRun, FlagNoServiceAutorun, FlagPasswordStore} {
			if err := applyIfDefined(s, name, ""); err != nil {
				return err
			}
		}
	}
	if spec.UserAgent != "" {
		if err := applyIfDefined(s, FlagUserAgent, spec.UserAgent); err != nil {
			return err
		}
	}
	if proxy := PickProxy(spec.Proxy); proxy != "" {
		if err := applyIfDefined(s, FlagProxyServer, proxy); err != nil {
			return err
		}
	}
	if r := spec.WindowRect; !r.IsZero() {
		if r.Width > 0 && r.Height > 0 {
			if err := applyIfDefined(s, FlagWindowSize, fmt.Sprintf("%d,%d", r.Width, r.Height)); err != nil {
				return err
			}
		}
		if err := applyIfDefined(s, FlagWindowPosition, fmt.Sprintf("%d,%d", r.X, r.Y)); err != nil {
			return err
		}
	}
	if spec.StartPage != "" {
		if err := applyIfDefined(s, FlagStartPage, spec.StartPage); err != nil {
			return err
		}
	}
	return nil
}

// applyIfDefined applies a flag, treating "not defined for this family" as
// a no-op rather than an error.
func applyIfDefined(s *Set, name, value string) error {
	err := s.Apply(name, value)
	if errors.Is(err, ErrUnknownFlag) {
		return nil
	}
	return err
}
