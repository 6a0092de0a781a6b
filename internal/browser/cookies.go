package browser

import (
	"github.com/go-rod/rod/lib/proto"

	"github.com/jinzenshi/gongkao/internal/state"
)

// cookieParams converts saved cookies into CDP parameters. Cookies without a
// name or domain cannot be installed and are skipped.
func cookieParams(cookies []state.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if !c.IsSession() {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

// fromNetworkCookies converts cookies read from the browser.
func fromNetworkCookies(cookies []*proto.NetworkCookie) []state.Cookie {
	out := make([]state.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		sc := state.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: state.SameSite(c.SameSite),
		}
		if c.Session || sc.Expires <= 0 {
			sc.Expires = state.SessionExpiry
		}
		out = append(out, sc)
	}
	return out
}
