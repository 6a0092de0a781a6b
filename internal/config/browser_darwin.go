//go:build darwin

package config

// DefaultBrowserBin returns the standard Chrome install path on macOS.
func DefaultBrowserBin() string {
	return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
}
