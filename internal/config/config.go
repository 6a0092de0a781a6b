package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up when --config is not given.
const DefaultFileName = "gongkao.yaml"

// Marker kinds understood by the completion detector.
const (
	MarkerText     = "text"
	MarkerHTML     = "html"
	MarkerSelector = "selector"
	MarkerRegex    = "regex"
)

// Verification modes.
const (
	VerifyReload = "reload"
	VerifyFresh  = "fresh"
)

// ValidMarkerKinds lists the accepted target.marker_kind values.
var ValidMarkerKinds = []string{MarkerText, MarkerHTML, MarkerSelector, MarkerRegex}

// ValidVerifyModes lists the accepted verify.mode values.
var ValidVerifyModes = []string{VerifyReload, VerifyFresh}

// Config holds all gongkao configuration.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Target   TargetConfig   `yaml:"target"`
	Browser  BrowserConfig  `yaml:"browser"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Verify   VerifyConfig   `yaml:"verify"`
	Journal  JournalConfig  `yaml:"journal"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`

	// dir is the directory of the loaded file; relative paths resolve against it.
	dir string
}

// SessionConfig locates the canonical state file and its backups.
type SessionConfig struct {
	File      string `yaml:"file"`
	BackupDir string `yaml:"backup_dir"` // empty = directory of File
}

// TargetConfig names the site and the marker that proves a login.
type TargetConfig struct {
	URL        string `yaml:"url"`
	Marker     string `yaml:"marker"`
	MarkerKind string `yaml:"marker_kind"` // text, html, selector, regex
}

// BrowserConfig configures the launched browser.
type BrowserConfig struct {
	Bin            string   `yaml:"bin"`   // empty = per-OS default
	Flags          []string `yaml:"flags"` // extra "--name=value" flags
	ViewportWidth  int      `yaml:"viewport_width"`
	ViewportHeight int      `yaml:"viewport_height"`
}

// TimeoutsConfig holds the wait budgets as duration strings.
type TimeoutsConfig struct {
	Login        string `yaml:"login"`
	Navigation   string `yaml:"navigation"`
	NetworkIdle  string `yaml:"network_idle"`
	PollInterval string `yaml:"poll_interval"`
}

// VerifyConfig selects how a persisted state is checked.
type VerifyConfig struct {
	Mode string `yaml:"mode"` // reload, fresh
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

// TracingConfig configures stage tracing.
type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"` // empty = stderr
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			File: "session.json",
		},
		Target: TargetConfig{
			URL:        "https://www.gongkaoleida.com/area/2129-2130-0-2,3-0",
			Marker:     "Four Leaf Clover",
			MarkerKind: MarkerText,
		},
		Browser: BrowserConfig{
			Bin:            DefaultBrowserBin(),
			Flags:          []string{},
			ViewportWidth:  1280,
			ViewportHeight: 800,
		},
		Timeouts: TimeoutsConfig{
			Login:        "120s",
			Navigation:   "30s",
			NetworkIdle:  "500ms",
			PollInterval: "500ms",
		},
		Verify: VerifyConfig{
			Mode: VerifyReload,
		},
		Journal: JournalConfig{
			Path: filepath.Join(".gongkao", "runs.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if abs, err := filepath.Abs(path); err == nil {
		cfg.dir = filepath.Dir(abs)
	}

	// A missing file means defaults; env overrides still apply.
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if cfg.Browser.Bin == "" {
		cfg.Browser.Bin = DefaultBrowserBin()
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GONGKAO_TARGET_URL"); v != "" {
		c.Target.URL = v
	}
	if v := os.Getenv("GONGKAO_MARKER"); v != "" {
		c.Target.Marker = v
	}
	if v := os.Getenv("GONGKAO_MARKER_KIND"); v != "" {
		c.Target.MarkerKind = strings.ToLower(v)
	}
	if v := os.Getenv("GONGKAO_BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("GONGKAO_SESSION_FILE"); v != "" {
		c.Session.File = v
	}
	if v := os.Getenv("GONGKAO_LOGIN_TIMEOUT"); v != "" {
		c.Timeouts.Login = v
	}
}

// Dir returns the directory relative paths are resolved against.
func (c *Config) Dir() string {
	if c.dir != "" {
		return c.dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// SetDir overrides the base directory for relative paths.
func (c *Config) SetDir(dir string) { c.dir = dir }

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// SessionFile returns the absolute canonical state path.
func (c *Config) SessionFile() string {
	return c.resolve(c.Session.File)
}

// BackupDir returns where backups are written. It defaults to the
// directory of the session file.
func (c *Config) BackupDir() string {
	if c.Session.BackupDir == "" {
		return filepath.Dir(c.SessionFile())
	}
	return c.resolve(c.Session.BackupDir)
}

// JournalPath returns the absolute journal path, or "" when disabled.
func (c *Config) JournalPath() string {
	return c.resolve(c.Journal.Path)
}

// LogFile returns the absolute log file path, or "" for console only.
func (c *Config) LogFile() string {
	return c.resolve(c.Logging.File)
}

// TraceFile returns the absolute trace output path, or "" for stderr.
func (c *Config) TraceFile() string {
	return c.resolve(c.Tracing.File)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLoginTimeout returns the marker wait budget.
func (c *Config) GetLoginTimeout() time.Duration {
	return parseDuration(c.Timeouts.Login, 120*time.Second)
}

// GetNavigationTimeout returns the budget for a navigation and its idle wait.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Timeouts.Navigation, 30*time.Second)
}

// GetNetworkIdle returns how long the network must stay quiet.
func (c *Config) GetNetworkIdle() time.Duration {
	return parseDuration(c.Timeouts.NetworkIdle, 500*time.Millisecond)
}

// GetPollInterval returns the content polling period.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Timeouts.PollInterval, 500*time.Millisecond)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target.URL) == "" {
		return fmt.Errorf("target.url is empty")
	}
	if c.Target.Marker == "" {
		return fmt.Errorf("target.marker is empty")
	}
	if !contains(ValidMarkerKinds, c.Target.MarkerKind) {
		return fmt.Errorf("invalid target.marker_kind: %q (valid: %v)", c.Target.MarkerKind, ValidMarkerKinds)
	}
	if !contains(ValidVerifyModes, c.Verify.Mode) {
		return fmt.Errorf("invalid verify.mode: %q (valid: %v)", c.Verify.Mode, ValidVerifyModes)
	}
	if c.Session.File == "" {
		return fmt.Errorf("session.file is empty")
	}

	durations := []struct{ key, value string }{
		{"timeouts.login", c.Timeouts.Login},
		{"timeouts.navigation", c.Timeouts.Navigation},
		{"timeouts.network_idle", c.Timeouts.NetworkIdle},
		{"timeouts.poll_interval", c.Timeouts.PollInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %s", d.key, d.value)
		}
	}

	if c.Browser.ViewportWidth < 0 || c.Browser.ViewportHeight < 0 {
		return fmt.Errorf("browser viewport must not be negative")
	}
	return c.Logging.Validate()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
