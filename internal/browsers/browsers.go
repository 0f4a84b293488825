// File: internal/browsers/browsers.go
package browsers

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Kind identifies a browser family.
type Kind string

const (
	KindChrome   Kind = "chrome"
	KindChromium Kind = "chromium"
	KindEdge     Kind = "edge"
	KindYandex   Kind = "yandex"
	KindBrave    Kind = "brave"
	KindFirefox  Kind = "firefox"
)

// ErrBrowserNotFound is returned when no installed browser matches a query.
var ErrBrowserNotFound = errors.New("browser not found")

// Browser describes one installed browser.
type Browser struct {
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
}

// IsBlink reports whether the browser belongs to the Chromium family and
// therefore takes Blink-style command line switches.
func (k Kind) IsBlink() bool {
	return k != KindFirefox
}

// ParseKind converts a user-supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindChrome:
		return KindChrome, nil
	case KindChromium:
		return KindChromium, nil
	case KindEdge:
		return KindEdge, nil
	case KindYandex:
		return KindYandex, nil
	case KindBrave:
		return KindBrave, nil
	case KindFirefox:
		return KindFirefox, nil
	default:
		return "", fmt.Errorf("unknown browser kind %q", s)
	}
}

// DefaultKind returns the browser preferred on the current platform.
func DefaultKind() Kind {
	if runtime.GOOS == "windows" {
		return KindEdge
	}
	return KindChrome
}

// Discover enumerates the browsers installed on this machine. Missing or
// unreadable installation records are skipped; an empty result is not an
// error.
func Discover(logger *zap.Logger) ([]Browser, error) {
	log := logger.Named("browsers")

	found, err := discoverPlatform(log)
	if err != nil {
		return nil, fmt.Errorf("discovering installed browsers: %w", err)
	}

	found = dedupe(found)
	log.Debug("Browser discovery finished.", zap.Int("count", len(found)))
	return found, nil
}

// Find returns the first discovered browser of the given kind.
func Find(logger *zap.Logger, kind Kind) (Browser, error) {
	all, err := Discover(logger)
	if err != nil {
		return Browser{}, err
	}
	for _, b := range all {
		if b.Kind == kind {
			return b, nil
		}
	}
	return Browser{}, fmt.Errorf("%w: %s", ErrBrowserNotFound, kind)
}

// dedupe removes entries that resolve to the same executable path, keeping
// the first occurrence.
func dedupe(in []Browser) []Browser {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, b := range in {
		key := strings.ToLower(b.Path)
		if b.Path == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}

var versionRe = regexp.MustCompile(`\d+(?:\.\d+)+`)

// parseVersion extracts a dotted version number from free-form output such
// as "Google Chrome 126.0.6478.61" or a raw registry value.
func parseVersion(s string) string {
	return versionRe.FindString(s)
}

// displayName returns the human readable product name for a kind.
func displayName(kind Kind) string {
	switch kind {
	case KindChrome:
		return "Google Chrome"
	case KindChromium:
		return "Chromium"
	case KindEdge:
		return "Microsoft Edge"
	case KindYandex:
		return "Yandex Browser"
	case KindBrave:
		return "Brave"
	case KindFirefox:
		return "Mozilla Firefox"
	default:
		return string(kind)
	}
}
