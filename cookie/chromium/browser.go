package chromium

import (
	"fmt"
	"os"
	"path/filepath"
)

var SupportedBrowsers = map[string]bool{
	"brave":    true,
	"chrome":   true,
	"chromium": true,
	"edge":     true,
	"opera":    true,
	"vivaldi":  true,
}

var userDataDir = map[string][]string{
	"brave":    {"BraveSoftware", "Brave-Browser", "User Data"},
	"chrome":   {"Google", "Chrome", "User Data"},
	"chromium": {"Chromium", "User Data"},
	"edge":     {"Microsoft", "Edge", "User Data"},
	"opera":    {"Opera Software", "Opera Stable"},
	"vivaldi":  {"Vivaldi", "User Data"},
}

// BrowserDir returns the user data directory of a chromium based browser.
// Opera keeps its data under the roaming profile, the rest under the local one.
func BrowserDir(browser string) (string, error) {
	parts, ok := userDataDir[browser]
	if !ok {
		return "", fmt.Errorf("browser %s not supported", browser)
	}
	env := "LOCALAPPDATA"
	if browser == "opera" {
		env = "APPDATA"
	}
	base := os.Getenv(env)
	if base == "" {
		return "", fmt.Errorf("%s is not set", env)
	}
	return filepath.Join(append([]string{base}, parts...)...), nil
}

// SupportsProfiles reports whether the browser keeps several profiles under
// its user data directory.
func SupportsProfiles(browser string) bool {
	return browser != "opera"
}

// FindMostRecentlyUsedFile walks root and returns the most recently modified
// file called filename, or "" if there is none.
func FindMostRecentlyUsedFile(root, filename string) string {
	var (
		newest  string
		modTime int64
	)
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() || info.Name() != filename {
			return nil
		}
		if t := info.ModTime().UnixNano(); newest == "" || t > modTime {
			newest, modTime = path, t
		}
		return nil
	})
	return newest
}
