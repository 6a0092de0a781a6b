package browser

import (
	"errors"
	"fmt"
)

// ErrIdleTimeout is returned by WaitNetworkIdle when the navigation budget
// ran out before the network went quiet.
var ErrIdleTimeout = errors.New("network did not become idle")

// ErrClosed is returned by operations on a closed Context.
var ErrClosed = errors.New("browsing context closed")

// LaunchError reports that the browser could not be started or reached.
type LaunchError struct {
	Bin    string
	Reason string
	Err    error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("launch browser %q: %s", e.Bin, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }
