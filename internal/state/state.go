// Package state models the persisted browser session (cookies plus
// per-origin storage) and the files it lives in: the canonical session file
// and its timestamped backups.
//
// The on-disk document uses the browser automation "storage state" layout so
// files written by earlier tooling load unchanged.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// SameSite is the cookie SameSite attribute.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// SessionExpiry is the Expires value of a cookie that lives only as long as
// the browsing session.
const SessionExpiry = -1

// Cookie is one cookie of the browsing context.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  float64  `json:"expires"` // seconds since epoch, -1 for session cookies
	HTTPOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
	SameSite SameSite `json:"sameSite,omitempty"`
}

// IsSession reports whether the cookie has no persistent expiry.
func (c Cookie) IsSession() bool {
	return c.Expires <= 0
}

// ExpiresAt returns the expiry as a time. ok is false for session cookies.
func (c Cookie) ExpiresAt() (t time.Time, ok bool) {
	if c.IsSession() {
		return time.Time{}, false
	}
	sec := int64(c.Expires)
	nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec), true
}

// NameValue is a single storage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin holds the web storage of one origin.
type Origin struct {
	Origin         string      `json:"origin"`
	LocalStorage   []NameValue `json:"localStorage"`
	SessionStorage []NameValue `json:"sessionStorage,omitempty"`
}

// SessionState is a snapshot of a browsing context.
type SessionState struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Origin returns the storage entry for origin, if any.
func (s *SessionState) Origin(origin string) (Origin, bool) {
	if s == nil {
		return Origin{}, false
	}
	for _, o := range s.Origins {
		if o.Origin == origin {
			return o, true
		}
	}
	return Origin{}, false
}

// Parse decodes a session document. Anything that is not a well-formed JSON
// object with the expected field types yields a *CorruptStateError.
func Parse(data []byte) (*SessionState, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &CorruptStateError{Reason: "document is not a JSON object"}
	}

	var st SessionState
	if err := json.Unmarshal(trimmed, &st); err != nil {
		return nil, &CorruptStateError{Reason: "malformed JSON", Err: err}
	}
	if st.Cookies == nil {
		st.Cookies = []Cookie{}
	}
	if st.Origins == nil {
		st.Origins = []Origin{}
	}
	return &st, nil
}

// Marshal encodes the state as indented JSON with a trailing newline.
// HTML characters are not escaped so cookie values stay byte-for-byte.
func Marshal(st *SessionState) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("nil session state")
	}
	out := *st
	if out.Cookies == nil {
		out.Cookies = []Cookie{}
	}
	if out.Origins == nil {
		out.Origins = []Origin{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
