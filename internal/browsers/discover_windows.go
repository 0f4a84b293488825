// File: internal/browsers/discover_windows.go
//go:build windows

package browsers

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/registry"
)

// appPathEntry maps a kind to its "App Paths" executable name and the
// registry location holding the installed version.
type appPathEntry struct {
	kind       Kind
	exe        string
	versionKey string
}

const (
	appPathsPrefix     = `SOFTWARE\Microsoft\Windows\CurrentVersion\App Paths\`
	startMenuInternet  = `SOFTWARE\Clients\StartMenuInternet`
	openCommandSubpath = `shell\open\command`
)

var appPathEntries = []appPathEntry{
	{KindChrome, "chrome.exe", `Software\Google\Chrome\BLBeacon`},
	{KindEdge, "msedge.exe", `Software\Microsoft\Edge\BLBeacon`},
	{KindYandex, "browser.exe", `Software\Yandex\YandexBrowser`},
	{KindBrave, "brave.exe", `Software\BraveSoftware\Brave-Browser\BLBeacon`},
	{KindChromium, "chromium.exe", ""},
	{KindFirefox, "firefox.exe", `SOFTWARE\Mozilla\Mozilla Firefox`},
}

// discoverPlatform reads installed browsers from the Windows registry. Both
// HKLM and HKCU are consulted since per-user installs (Chrome in particular)
// only register under HKCU.
func discoverPlatform(log *zap.Logger) ([]Browser, error) {
	var found []Browser

	for _, entry := range appPathEntries {
		for _, root := range []registry.Key{registry.LOCAL_MACHINE, registry.CURRENT_USER} {
			path, err := readAppPath(root, entry.exe)
			if err != nil {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				log.Debug("Registered browser executable missing on disk.",
					zap.String("exe", entry.exe), zap.String("path", path))
				continue
			}
			found = append(found, Browser{
				Kind:    entry.kind,
				Name:    displayName(entry.kind),
				Path:    path,
				Version: readVersion(root, entry),
			})
		}
	}

	// StartMenuInternet catches installs that never registered an App Paths
	// entry. Paths already found above are collapsed by dedupe.
	for _, root := range []registry.Key{registry.LOCAL_MACHINE, registry.CURRENT_USER} {
		found = append(found, readStartMenuInternet(log, root)...)
	}

	return found, nil
}

// readStartMenuInternet enumerates the registered default-browser clients
// under one registry root and maps each open command back to a known kind.
func readStartMenuInternet(log *zap.Logger, root registry.Key) []Browser {
	clients, err := registry.OpenKey(root, startMenuInternet, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil
	}
	defer clients.Close()

	names, err := clients.ReadSubKeyNames(-1)
	if err != nil {
		return nil
	}

	var found []Browser
	for _, name := range names {
		path, err := readOpenCommand(root, name)
		if err != nil {
			continue
		}
		kind, ok := kindForExecutable(path)
		if !ok {
			log.Debug("Unrecognized StartMenuInternet client.",
				zap.String("client", name), zap.String("path", path))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		found = append(found, Browser{
			Kind:    kind,
			Name:    displayName(kind),
			Path:    path,
			Version: readVersion(root, entryForKind(kind)),
		})
	}
	return found
}

// readOpenCommand resolves the shell open command of one client subkey.
func readOpenCommand(root registry.Key, client string) (string, error) {
	k, err := registry.OpenKey(root, startMenuInternet+`\`+client+`\`+openCommandSubpath, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer k.Close()

	command, _, err := k.GetStringValue("")
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(command), `"`), nil
}

// kindForExecutable maps a command path to a kind by its executable name.
func kindForExecutable(path string) (Kind, bool) {
	base := strings.ToLower(filepath.Base(path))
	for _, entry := range appPathEntries {
		if base == entry.exe {
			return entry.kind, true
		}
	}
	return "", false
}

func entryForKind(kind Kind) appPathEntry {
	for _, entry := range appPathEntries {
		if entry.kind == kind {
			return entry
		}
	}
	return appPathEntry{}
}

// readAppPath resolves the default value of the App Paths key for an
// executable name.
func readAppPath(root registry.Key, exe string) (string, error) {
	k, err := registry.OpenKey(root, appPathsPrefix+exe, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer k.Close()

	path, _, err := k.GetStringValue("")
	if err != nil {
		return "", err
	}
	return strings.Trim(path, `"`), nil
}

// readVersion looks up the product version for an install. An empty string
// is returned when the key is absent or malformed.
func readVersion(root registry.Key, entry appPathEntry) string {
	if entry.versionKey == "" {
		return ""
	}

	k, err := registry.OpenKey(root, entry.versionKey, registry.QUERY_VALUE)
	if err != nil {
		return ""
	}
	defer k.Close()

	for _, value := range []string{"version", "CurrentVersion"} {
		if raw, _, err := k.GetStringValue(value); err == nil {
			if v := parseVersion(raw); v != "" {
				return v
			}
		}
	}
	return ""
}
