// Package detect waits for an interactive login to finish by watching the
// page for a marker. It knows nothing about browsers beyond the Page
// interface, so it is driven by fakes in tests.
package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jinzenshi/gongkao/internal/logging"
)

// Page is the part of a browsing context the detector drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitNetworkIdle(ctx context.Context) error
	Content(ctx context.Context) (string, error)
	// Done is closed when the page can no longer be observed.
	Done() <-chan struct{}
}

// Outcome is the result of a completed wait.
type Outcome int

const (
	Completed Outcome = iota
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrPageGone is wrapped by NavigationError when the page disappears while
// the detector is watching it.
var ErrPageGone = errors.New("page closed or browser disconnected")

// NavigationError reports that the target could not be loaded or observed.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

const (
	// DefaultPollInterval is how often page content is inspected.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultCheckTimeout bounds the content read of a single check.
	DefaultCheckTimeout = 30 * time.Second
)

// Detector polls a page for a completion predicate.
type Detector struct {
	poll  time.Duration
	check time.Duration
	log   *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithCheckTimeout bounds the content read done by CheckOnce.
func WithCheckTimeout(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.check = d
		}
	}
}

// New returns a detector polling every poll (DefaultPollInterval if zero).
func New(poll time.Duration, logger *zap.Logger, opts ...Option) *Detector {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	d := &Detector{
		poll:  poll,
		check: DefaultCheckTimeout,
		log:   logging.For(logger, logging.CategoryDetect),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// PollInterval returns the polling period.
func (d *Detector) PollInterval() time.Duration { return d.poll }

// AwaitLogin navigates to url, waits for the network to settle, then polls
// until pred matches or timeout elapses. The timeout covers only the
// polling stage. A timeout is an Outcome, not an error; errors are
// *NavigationError or the context's error.
func (d *Detector) AwaitLogin(ctx context.Context, page Page, url string, pred Predicate, timeout time.Duration) (Outcome, error) {
	d.log.Info("Navigating to target", zap.String("url", url))
	if err := page.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return TimedOut, ctx.Err()
		}
		return TimedOut, &NavigationError{URL: url, Err: err}
	}

	if err := d.settle(ctx, page); err != nil {
		return TimedOut, err
	}

	d.log.Info("Waiting for login marker",
		zap.Stringer("predicate", pred),
		zap.Duration("timeout", timeout),
		zap.Duration("poll", d.poll))

	start := time.Now()
	until := start.Add(timeout)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		if d.matches(ctx, page, pred, until) {
			d.log.Info("Login marker found",
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("polls", polls))
			return Completed, nil
		}

		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		case <-page.Done():
			return TimedOut, &NavigationError{URL: url, Err: ErrPageGone}
		case <-deadline.C:
			d.log.Warn("Login marker not seen before timeout",
				zap.Duration("timeout", timeout),
				zap.Int("polls", polls))
			return TimedOut, nil
		case <-ticker.C:
		}
	}
}

// CheckOnce waits for the network to settle and inspects the content
// exactly once. The content read is bounded by the check timeout.
func (d *Detector) CheckOnce(ctx context.Context, page Page, pred Predicate) (bool, error) {
	if err := d.settle(ctx, page); err != nil {
		return false, err
	}
	readCtx, cancel := context.WithTimeout(ctx, d.check)
	defer cancel()
	html, err := page.Content(readCtx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("read page content: %w", err)
	}
	ok, err := pred.Match(html)
	if err != nil {
		return false, fmt.Errorf("evaluate %s: %w", pred, err)
	}
	d.log.Debug("Single check", zap.Stringer("predicate", pred), zap.Bool("matched", ok))
	return ok, nil
}

// settle waits for network idle. Only cancellation is an error; an idle
// wait that runs out of budget is logged and the caller carries on.
func (d *Detector) settle(ctx context.Context, page Page) error {
	start := time.Now()
	err := page.WaitNetworkIdle(ctx)
	if err == nil {
		d.log.Debug("Network idle", zap.Duration("elapsed", time.Since(start)))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	d.log.Warn("Network did not settle, continuing", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// matches reads and tests the content. A read may last one poll interval
// and never runs past until. Read failures while the site is mid-navigation
// are expected and only logged.
func (d *Detector) matches(ctx context.Context, page Page, pred Predicate, until time.Time) bool {
	if next := time.Now().Add(d.poll); next.Before(until) {
		until = next
	}
	readCtx, cancel := context.WithDeadline(ctx, until)
	defer cancel()

	html, err := page.Content(readCtx)
	if err != nil {
		d.log.Debug("Content read failed, will retry", zap.Error(err))
		return false
	}
	ok, err := pred.Match(html)
	if err != nil {
		d.log.Debug("Predicate failed, will retry", zap.Error(err))
		return false
	}
	return ok
}
