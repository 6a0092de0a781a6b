package refresh

import (
	"context"

	"github.com/jinzenshi/gongkao/internal/browser"
	"github.com/jinzenshi/gongkao/internal/detect"
	"github.com/jinzenshi/gongkao/internal/state"
)

// BrowsingContext is an isolated browser context with one page.
type BrowsingContext interface {
	detect.Page
	Reload(ctx context.Context) error
	ExportState(ctx context.Context) (*state.SessionState, error)
	Close() error
}

// Opener creates browsing contexts, optionally seeded from a prior state.
type Opener interface {
	Open(ctx context.Context, prior *state.SessionState) (BrowsingContext, error)
	Shutdown() error
}

// BrowserOpener adapts a browser.Manager to Opener.
func BrowserOpener(m *browser.Manager) Opener {
	return managerOpener{m: m}
}

type managerOpener struct {
	m *browser.Manager
}

func (o managerOpener) Open(ctx context.Context, prior *state.SessionState) (BrowsingContext, error) {
	c, err := o.m.Open(ctx, prior)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (o managerOpener) Shutdown() error { return o.m.Shutdown() }
