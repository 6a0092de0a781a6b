//go:build linux

package config

// DefaultBrowserBin returns the standard Chrome install path on Linux.
func DefaultBrowserBin() string {
	return "/usr/bin/google-chrome"
}
