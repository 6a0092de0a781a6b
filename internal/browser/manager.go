package browser

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/jinzenshi/gongkao/internal/logging"
	"github.com/jinzenshi/gongkao/internal/state"
)

// Manager owns the browser process. The process is launched by the first
// Open and shared by later ones.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	contexts map[*Context]struct{}
}

// NewManager creates a manager. Nothing is launched until Open.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      logging.For(logger, logging.CategoryBrowser),
		contexts: make(map[*Context]struct{}),
	}
}

// startLocked launches and connects the browser. Caller must hold m.mu.
func (m *Manager) startLocked(ctx context.Context) error {
	if m.browser != nil {
		return nil
	}

	bin := m.cfg.Bin
	if bin == "" {
		return &LaunchError{Reason: "no browser binary configured"}
	}
	if _, err := os.Stat(bin); err != nil {
		return &LaunchError{Bin: bin, Reason: "browser binary not found", Err: err}
	}

	l := m.cfg.newLauncher().Context(ctx)
	m.log.Debug("Launching browser", zap.String("bin", bin), zap.Strings("args", l.FormatArgs()))

	controlURL, err := l.Launch()
	if err != nil {
		return &LaunchError{Bin: bin, Reason: "launch failed", Err: err}
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return &LaunchError{Bin: bin, Reason: "connect to devtools failed", Err: err}
	}

	// Target events feed each context's Done channel.
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		m.log.Warn("Target discovery unavailable; window close will not be detected", zap.Error(err))
	}

	m.launch = l
	m.browser = b
	m.log.Info("Browser started", zap.String("bin", bin), zap.Int("pid", l.PID()))
	return nil
}

// Open creates an isolated incognito context with one blank page. When prior
// is non-nil its cookies are installed before any navigation, and its web
// storage is seeded into matching origins during the first navigation.
func (m *Manager) Open(ctx context.Context, prior *state.SessionState) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.startLocked(ctx); err != nil {
		return nil, err
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	dispose := func() {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: incognito.BrowserContextID}.Call(m.browser)
	}

	if prior != nil {
		if params := cookieParams(prior.Cookies); len(params) > 0 {
			if err := incognito.SetCookies(params); err != nil {
				dispose()
				return nil, fmt.Errorf("install cookies: %w", err)
			}
			m.log.Debug("Installed cookies", zap.Int("count", len(params)))
		}
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		dispose()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if m.cfg.ViewportWidth > 0 && m.cfg.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             m.cfg.ViewportWidth,
			Height:            m.cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			m.log.Warn("Failed to set viewport", zap.Error(err))
		}
	}

	c := newContext(m, incognito, page, prior)

	if prior != nil {
		script, err := seedScript(prior.Origins)
		if err != nil {
			c.teardown()
			return nil, err
		}
		if script != "" {
			remove, err := page.EvalOnNewDocument(script)
			if err != nil {
				c.teardown()
				return nil, fmt.Errorf("install storage seed: %w", err)
			}
			c.removeSeed = remove
			m.log.Debug("Storage seed installed", zap.Int("origins", len(prior.Origins)))
		}
	}

	c.watch()
	m.contexts[c] = struct{}{}
	m.log.Info("Browsing context opened",
		zap.String("target", string(page.TargetID)),
		zap.Bool("seeded", prior != nil))
	return c, nil
}

func (m *Manager) forget(c *Context) {
	m.mu.Lock()
	delete(m.contexts, c)
	m.mu.Unlock()
}

// Connected reports whether a browser is running.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// Shutdown closes every open context, the browser, and removes the
// launcher's temporary profile.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	open := make([]*Context, 0, len(m.contexts))
	for c := range m.contexts {
		open = append(open, c)
	}
	m.mu.Unlock()

	for _, c := range open {
		_ = c.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil
	}

	if err := m.browser.Close(); err != nil {
		// Already gone or unreachable; make sure the process dies.
		m.log.Debug("Browser close failed, killing process", zap.Error(err))
		m.launch.Kill()
	}
	m.launch.Cleanup()

	m.browser = nil
	m.launch = nil
	m.log.Info("Browser shut down")
	return nil
}
