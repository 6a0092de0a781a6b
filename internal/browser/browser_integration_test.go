//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinzenshi/gongkao/internal/browser"
	"github.com/jinzenshi/gongkao/internal/state"
)

// storageSite renders the "sid" cookie server side and the "user" localStorage
// entry client side.
func storageSite() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := "none"
		if c, err := r.Cookie("sid"); err == nil {
			sid = c.Value
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><p id="sid">sid=%s</p><p id="user"></p>
<script>
document.getElementById('user').textContent = 'user=' + (localStorage.getItem('user') || 'anon');
localStorage.setItem('visits', String(Number(localStorage.getItem('visits') || 0) + 1));
</script></body></html>`, sid)
	}))
}

func newManager(t *testing.T) *browser.Manager {
	t.Helper()
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome/Chromium found")
	}
	cfg := browser.DefaultConfig()
	cfg.Bin = bin
	cfg.Headless = true
	cfg.NavigationTimeout = 10 * time.Second
	cfg.NetworkIdle = 200 * time.Millisecond

	m := browser.NewManager(cfg, nil)
	t.Cleanup(func() {
		if err := m.Shutdown(); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	})
	return m
}

func TestManager_EmptyContext_Integration(t *testing.T) {
	ts := storageSite()
	defer ts.Close()

	m := newManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bctx, err := m.Open(ctx, nil)
	require.NoError(t, err)
	defer bctx.Close()

	require.NoError(t, bctx.Navigate(ctx, ts.URL))
	require.NoError(t, bctx.WaitNetworkIdle(ctx))

	html, err := bctx.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "sid=none")
	assert.Contains(t, html, "user=anon")
}

func TestManager_SeedAndExport_Integration(t *testing.T) {
	ts := storageSite()
	defer ts.Close()
	origin := strings.TrimSuffix(ts.URL, "/")

	m := newManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prior := &state.SessionState{
		Cookies: []state.Cookie{
			{Name: "sid", Value: "abc", Domain: "127.0.0.1", Path: "/", Expires: state.SessionExpiry},
		},
		Origins: []state.Origin{
			{Origin: origin, LocalStorage: []state.NameValue{{Name: "user", Value: "Clover"}}},
			{Origin: "https://elsewhere.test", LocalStorage: []state.NameValue{{Name: "keep", Value: "me"}}},
		},
	}

	bctx, err := m.Open(ctx, prior)
	require.NoError(t, err)

	require.NoError(t, bctx.Navigate(ctx, ts.URL))
	require.NoError(t, bctx.WaitNetworkIdle(ctx))

	html, err := bctx.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "sid=abc", "cookie installed before navigation")
	assert.Contains(t, html, "user=Clover", "storage seeded at document start")

	// After the seed script is removed a reload keeps the site's own writes.
	require.NoError(t, bctx.Reload(ctx))
	require.NoError(t, bctx.WaitNetworkIdle(ctx))

	exported, err := bctx.ExportState(ctx)
	require.NoError(t, err)

	require.Len(t, exported.Cookies, 1)
	assert.Equal(t, "abc", exported.Cookies[0].Value)

	got, ok := exported.Origin(origin)
	require.True(t, ok)
	values := map[string]string{}
	for _, kv := range got.LocalStorage {
		values[kv.Name] = kv.Value
	}
	assert.Equal(t, "Clover", values["user"])
	assert.Equal(t, "2", values["visits"])
	assert.Empty(t, got.SessionStorage, "seeding marker is never exported")

	_, ok = exported.Origin("https://elsewhere.test")
	assert.True(t, ok, "origins not open are carried forward")

	require.NoError(t, bctx.Close())
	select {
	case <-bctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after Close")
	}
}

func TestManager_ContextsAreIsolated_Integration(t *testing.T) {
	ts := storageSite()
	defer ts.Close()

	m := newManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seeded, err := m.Open(ctx, &state.SessionState{
		Cookies: []state.Cookie{{Name: "sid", Value: "one", Domain: "127.0.0.1", Path: "/", Expires: state.SessionExpiry}},
	})
	require.NoError(t, err)
	defer seeded.Close()

	empty, err := m.Open(ctx, nil)
	require.NoError(t, err)
	defer empty.Close()

	require.NoError(t, empty.Navigate(ctx, ts.URL))
	require.NoError(t, empty.WaitNetworkIdle(ctx))
	html, err := empty.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "sid=none")
}
