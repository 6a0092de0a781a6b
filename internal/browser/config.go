// Package browser drives a visible Chrome through go-rod. A Manager owns the
// browser process; every Open hands out an isolated incognito Context with a
// single page, optionally seeded from a saved session state.
package browser

import (
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// Config holds browser configuration.
type Config struct {
	Bin               string        // fixed path to the Chrome binary
	Flags             []string      // extra "--name=value" flags
	Headless          bool          // only used by tests
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration // budget for a navigation and its idle wait
	NetworkIdle       time.Duration // quiet window that counts as idle
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ViewportWidth:     1280,
		ViewportHeight:    800,
		NavigationTimeout: 30 * time.Second,
		NetworkIdle:       500 * time.Millisecond,
	}
}

// GetNavigationTimeout returns the navigation budget.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// GetNetworkIdle returns the idle window.
func (c Config) GetNetworkIdle() time.Duration {
	if c.NetworkIdle <= 0 {
		return 500 * time.Millisecond
	}
	return c.NetworkIdle
}

// newLauncher builds the launcher for c. The first-run and default-browser
// prompts are always suppressed.
func (c Config) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Bin(c.Bin).
		Headless(c.Headless).
		Set(flags.Flag("no-first-run")).
		Set(flags.Flag("no-default-browser-check"))

	for _, raw := range c.Flags {
		flagStr := strings.TrimLeft(strings.TrimSpace(raw), "-")
		if flagStr == "" {
			continue
		}
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}
