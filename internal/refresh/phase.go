package refresh

import "fmt"

// Phase is a state of a refresh run.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseRestoring
	PhaseBrowserOpen
	PhaseAwaitingLogin
	PhasePersisting
	PhaseVerified
	PhaseVerifyFailed
	PhaseTimedOut
	PhaseFatal
	PhaseHoldOpen
)

var phaseNames = map[Phase]string{
	PhaseStart:         "start",
	PhaseRestoring:     "restoring",
	PhaseBrowserOpen:   "browser_open",
	PhaseAwaitingLogin: "awaiting_login",
	PhasePersisting:    "persisting",
	PhaseVerified:      "verified",
	PhaseVerifyFailed:  "verify_failed",
	PhaseTimedOut:      "timed_out",
	PhaseFatal:         "fatal",
	PhaseHoldOpen:      "hold_open",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether a run can end in p (before holding open).
func (p Phase) Terminal() bool {
	switch p {
	case PhaseVerified, PhaseVerifyFailed, PhaseTimedOut, PhaseFatal:
		return true
	}
	return false
}

// Holds reports whether the browser stays open after p.
func (p Phase) Holds() bool {
	return p.Terminal() && p != PhaseFatal
}

// Verdict is the result of checking a freshly persisted state.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerifiedOk
	VerifyFailed
)

func (v Verdict) String() string {
	switch v {
	case VerifiedOk:
		return "verified"
	case VerifyFailed:
		return "verify_failed"
	default:
		return "none"
	}
}

// VerifyMode selects how a persisted state is checked.
type VerifyMode string

const (
	// VerifyReload reloads the login page and looks for the marker again.
	VerifyReload VerifyMode = "reload"
	// VerifyFresh re-reads the saved file into a new context and looks there.
	VerifyFresh VerifyMode = "fresh"
)

// ParseVerifyMode accepts "reload", "fresh", or "" (reload).
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch VerifyMode(s) {
	case "", VerifyReload:
		return VerifyReload, nil
	case VerifyFresh:
		return VerifyFresh, nil
	}
	return "", fmt.Errorf("unknown verify mode %q", s)
}
