//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// DefaultBrowserBin returns the standard Chrome install path on Windows.
func DefaultBrowserBin() string {
	base := os.Getenv("ProgramFiles")
	if base == "" {
		base = `C:\Program Files`
	}
	return filepath.Join(base, "Google", "Chrome", "Application", "chrome.exe")
}
