//go:build !darwin && !linux && !windows

package config

// DefaultBrowserBin has no well-known location here; browser.bin must be set.
func DefaultBrowserBin() string { return "" }
