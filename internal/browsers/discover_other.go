// File: internal/browsers/discover_other.go
//go:build !windows

package browsers

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// candidate is one probe target on PATH (or an absolute location).
type candidate struct {
	kind Kind
	name string
}

var candidates = []candidate{
	{KindChrome, "google-chrome"},
	{KindChrome, "google-chrome-stable"},
	{KindChrome, "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
	{KindChromium, "chromium"},
	{KindChromium, "chromium-browser"},
	{KindChromium, "/Applications/Chromium.app/Contents/MacOS/Chromium"},
	{KindEdge, "microsoft-edge"},
	{KindEdge, "microsoft-edge-stable"},
	{KindEdge, "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
	{KindYandex, "yandex-browser"},
	{KindBrave, "brave-browser"},
	{KindBrave, "/Applications/Brave Browser.app/Contents/MacOS/Brave Browser"},
	{KindFirefox, "firefox"},
	{KindFirefox, "/Applications/Firefox.app/Contents/MacOS/firefox"},
}

const versionProbeTimeout = 3 * time.Second

// discoverPlatform probes well-known binary names on PATH. The registry is a
// Windows concept; elsewhere the executable name is the installation record.
func discoverPlatform(log *zap.Logger) ([]Browser, error) {
	var found []Browser

	for _, c := range candidates {
		path, ok := resolveCandidate(c.name)
		if !ok {
			continue
		}
		found = append(found, Browser{
			Kind:    c.kind,
			Name:    displayName(c.kind),
			Path:    path,
			Version: probeVersion(log, path),
		})
	}

	return found, nil
}

func resolveCandidate(name string) (string, bool) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, true
		}
		return "", false
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, true
	}
	return "", false
}

// probeVersion runs "<binary> --version" and extracts the dotted version
// from its output. Failures just leave the version empty.
func probeVersion(log *zap.Logger, path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		log.Debug("Version probe failed.", zap.String("path", path), zap.Error(err))
		return ""
	}
	return parseVersion(string(out))
}
