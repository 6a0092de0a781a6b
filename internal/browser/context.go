package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/jinzenshi/gongkao/internal/state"
)

const closeTimeout = 5 * time.Second

// Context is one incognito browsing context with a single page.
type Context struct {
	m       *Manager
	cfg     Config
	log     *zap.Logger
	root    *rod.Browser
	browser *rod.Browser // incognito view of root
	page    *rod.Page
	prior   *state.SessionState

	mu         sync.Mutex
	closed     bool
	removeSeed func() error
	pending    *idleWait

	done      chan struct{}
	stopWatch context.CancelFunc
	closeOnce sync.Once
}

// idleWait is a network-idle wait armed before the navigation it observes.
type idleWait struct {
	wait   func()
	ctx    context.Context // navigation budget
	cancel context.CancelFunc
}

func newContext(m *Manager, incognito *rod.Browser, page *rod.Page, prior *state.SessionState) *Context {
	return &Context{
		m:       m,
		cfg:     m.cfg,
		log:     m.log.With(zap.String("target", string(page.TargetID))),
		root:    m.browser,
		browser: incognito,
		page:    page,
		prior:   prior,
		done:    make(chan struct{}),
	}
}

// watch closes Done when the page target is destroyed or crashes, or when
// the DevTools connection drops.
func (c *Context) watch() {
	wctx, cancel := context.WithCancel(context.Background())
	c.stopWatch = cancel

	tid := c.page.TargetID
	wait := c.root.Context(wctx).EachEvent(
		func(e *proto.TargetTargetDestroyed) bool { return e.TargetID == tid },
		func(e *proto.TargetTargetCrashed) bool { return e.TargetID == tid },
	)
	go func() {
		defer close(c.done)
		wait()
		if wctx.Err() == nil {
			c.log.Info("Page closed or browser disconnected")
		}
	}()
}

// Done is closed once the page is gone: the operator closed the window, the
// renderer crashed, the browser exited, or Close was called.
func (c *Context) Done() <-chan struct{} { return c.done }

func (c *Context) armIdle(ctx context.Context) *idleWait {
	budget, cancel := context.WithTimeout(ctx, c.cfg.GetNavigationTimeout())
	wait := c.page.Context(budget).WaitRequestIdle(c.cfg.GetNetworkIdle(), nil, nil, nil)
	return &idleWait{wait: wait, ctx: budget, cancel: cancel}
}

// beginNavigation arms the idle wait that the next WaitNetworkIdle consumes.
func (c *Context) beginNavigation(ctx context.Context) (*idleWait, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.pending != nil {
		c.pending.cancel()
	}
	c.pending = c.armIdle(ctx)
	return c.pending, nil
}

func (c *Context) abortNavigation(w *idleWait) {
	c.mu.Lock()
	if c.pending == w {
		c.pending = nil
	}
	c.mu.Unlock()
	w.cancel()
}

// Navigate loads url in the page. The navigation and the idle wait that
// follows it share one navigation budget.
func (c *Context) Navigate(ctx context.Context, url string) error {
	w, err := c.beginNavigation(ctx)
	if err != nil {
		return err
	}
	c.log.Debug("Navigating", zap.String("url", url))
	if err := c.page.Context(w.ctx).Navigate(url); err != nil {
		c.abortNavigation(w)
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Reload reloads the current document.
func (c *Context) Reload(ctx context.Context) error {
	w, err := c.beginNavigation(ctx)
	if err != nil {
		return err
	}
	c.log.Debug("Reloading")
	if err := c.page.Context(w.ctx).Reload(); err != nil {
		c.abortNavigation(w)
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// WaitNetworkIdle blocks until no request has been in flight for the idle
// window. After Navigate or Reload it waits on the budget armed there;
// otherwise a fresh budget starts now. It returns ErrIdleTimeout when the
// budget runs out and ctx.Err() when ctx is cancelled.
func (c *Context) WaitNetworkIdle(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	w := c.pending
	c.pending = nil
	c.mu.Unlock()

	if w == nil {
		w = c.armIdle(ctx)
	}
	defer w.cancel()

	w.wait()
	c.settleSeed()

	if err := w.ctx.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrIdleTimeout
		}
		return err
	}
	return nil
}

// settleSeed removes the storage seeding script after the initial
// navigation so later reloads see the site's own storage.
func (c *Context) settleSeed() {
	c.mu.Lock()
	remove := c.removeSeed
	c.removeSeed = nil
	c.mu.Unlock()

	if remove == nil {
		return
	}
	if err := remove(); err != nil {
		c.log.Warn("Failed to remove storage seed script", zap.Error(err))
		return
	}
	c.log.Debug("Storage seed script removed")
}

// Content returns the serialized HTML of the current document.
func (c *Context) Content(ctx context.Context) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	return c.page.Context(ctx).HTML()
}

// ExportState captures every cookie of the context and the web storage of
// the page's current origin. Other origins from the seeding state are
// carried forward unchanged.
func (c *Context) ExportState(ctx context.Context) (*state.SessionState, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	cookies, err := c.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	var prior []state.Origin
	if c.prior != nil {
		prior = c.prior.Origins
	}

	snap, err := snapshotStorage(c.page.Context(ctx))
	if err != nil {
		// Cookies carry the login; keep the saved storage as it was.
		c.log.Warn("Web storage unreadable, carrying previous storage forward", zap.Error(err))
		snap = nil
	}
	current, ok := snap.toOrigin()

	st := &state.SessionState{
		Cookies: fromNetworkCookies(cookies),
		Origins: mergeOrigins(prior, current, ok),
	}
	c.log.Debug("State exported",
		zap.Int("cookies", len(st.Cookies)),
		zap.Int("origins", len(st.Origins)))
	return st, nil
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the page and disposes of the incognito context. It is safe
// to call more than once.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.teardown()
		c.m.forget(c)
	})
	return nil
}

func (c *Context) teardown() {
	c.mu.Lock()
	c.closed = true
	if c.pending != nil {
		c.pending.cancel()
		c.pending = nil
	}
	c.mu.Unlock()

	// A page stuck in beforeunload must not block shutdown.
	_ = c.page.Timeout(closeTimeout).Close()
	_ = proto.TargetDisposeBrowserContext{BrowserContextID: c.browser.BrowserContextID}.Call(c.root)

	if c.stopWatch != nil {
		c.stopWatch()
		<-c.done
	}
}
