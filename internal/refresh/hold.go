package refresh

import "context"

// Holder decides how long the browser stays open once a run has reached a
// non-fatal terminal phase.
type Holder interface {
	Hold(ctx context.Context, bctx BrowsingContext) error
}

// HoldUntilClosed blocks until the operator closes the browser window or
// ctx is cancelled.
type HoldUntilClosed struct{}

func (HoldUntilClosed) Hold(ctx context.Context, bctx BrowsingContext) error {
	select {
	case <-bctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoHold returns immediately.
type NoHold struct{}

func (NoHold) Hold(context.Context, BrowsingContext) error { return nil }
