package refresh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jinzenshi/gongkao/internal/browser"
	"github.com/jinzenshi/gongkao/internal/detect"
	"github.com/jinzenshi/gongkao/internal/state"
)

const priorDoc = `{
  "cookies": [
    {"name": "sid", "value": "old", "domain": ".site.test", "path": "/",
     "expires": 1893456000, "httpOnly": true, "secure": true, "sameSite": "Lax"}
  ],
  "origins": [
    {"origin": "https://www.site.test", "localStorage": [{"name": "theme", "value": "dark"}]}
  ],
  "extra": true
}`

var fixedNow = time.Date(2026, 10, 18, 9, 30, 15, 0, time.Local)

type harness struct {
	dir      string
	site     *fakeSite
	holder   *countingHolder
	recorder *memRecorder
	reporter *recordingReporter
	spans    *tracetest.SpanRecorder
	events   []string
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		dir:      t.TempDir(),
		site:     &fakeSite{},
		reporter: &recordingReporter{},
		spans:    tracetest.NewSpanRecorder(),
	}
	h.holder = &countingHolder{events: &h.events}
	h.recorder = &memRecorder{events: &h.events}
	return h
}

func (h *harness) sessionFile() string { return filepath.Join(h.dir, "session.json") }

func (h *harness) runner(t *testing.T, mode VerifyMode, timeout time.Duration) *Runner {
	t.Helper()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return NewRunner(Options{
		SessionFile:  h.sessionFile(),
		TargetURL:    targetURL,
		Predicate:    detect.TextContains(marker),
		LoginTimeout: timeout,
		VerifyMode:   mode,
		Now:          func() time.Time { return fixedNow },
	}, h.site, detect.New(5*time.Millisecond, nil), nil,
		WithHolder(h.holder),
		WithReporter(h.reporter),
		WithRecorder(h.recorder),
		WithTracer(tp.Tracer("test")))
}

func (h *harness) spanNames() []string {
	var names []string
	for _, s := range h.spans.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func TestRun_NoPriorFile(t *testing.T) {
	h := newHarness(t)
	h.site.loginAfter = 3

	res, err := h.runner(t, VerifyReload, 2*time.Second).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseVerified, res.Phase)
	assert.Equal(t, detect.Completed, res.Outcome)
	assert.Equal(t, VerifiedOk, res.Verdict)
	assert.Empty(t, res.BackupPath)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, h.site.opens, 1)
	assert.Nil(t, h.site.opens[0], "context starts empty")
	assert.Equal(t, 1, h.site.shutdowns)
	assert.True(t, h.site.contexts[0].closed)
	assert.Equal(t, []string{
		"navigate", "idle", "content", "content", "content",
		"reload", "idle", "content",
	}, h.site.contexts[0].calls, "every content check follows a settled network")

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no backup without a prior file")

	saved, _, err := state.Load(h.sessionFile())
	require.NoError(t, err)
	require.Len(t, saved.Cookies, 1)
	assert.Equal(t, "fresh", saved.Cookies[0].Value)

	assert.Equal(t, []string{"record", "hold"}, h.events, "journal is written before holding")
	require.Len(t, h.recorder.runs, 1)
	run := h.recorder.runs[0]
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, "verified", run.Phase)
	assert.Equal(t, "completed", run.Outcome)
	assert.Equal(t, "verified", run.Verdict)
	assert.Empty(t, run.Error)

	assert.Equal(t, []Phase{
		PhaseRestoring, PhaseBrowserOpen, PhaseAwaitingLogin,
		PhasePersisting, PhaseVerified, PhaseHoldOpen,
	}, h.reporter.phases)
	assert.Contains(t, h.reporter.lines, "✓ 登录验证成功！")

	assert.ElementsMatch(t,
		[]string{"restore", "open", "await_login", "persist", "verify", "refresh.run"},
		h.spanNames())
}

func TestRun_PriorFileIsBackedUpAndSeeded(t *testing.T) {
	h := newHarness(t)
	writeFile(t, h.sessionFile(), []byte(priorDoc))

	res, err := h.runner(t, VerifyReload, 2*time.Second).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseVerified, res.Phase, "old sid cookie already logs in")

	wantBackup := filepath.Join(h.dir, state.BackupName(fixedNow))
	assert.Equal(t, wantBackup, res.BackupPath)
	backup, err := os.ReadFile(wantBackup)
	require.NoError(t, err)
	assert.Equal(t, priorDoc, string(backup), "backup is byte-identical")

	want, err := state.Parse([]byte(priorDoc))
	require.NoError(t, err)
	require.Len(t, h.site.opens, 1)
	if diff := cmp.Diff(want, h.site.opens[0]); diff != "" {
		t.Errorf("seed state mismatch (-want +got):\n%s", diff)
	}

	saved, _, err := state.Load(h.sessionFile())
	require.NoError(t, err)
	require.Len(t, saved.Origins, 1, "storage carried into the new file")
	assert.Equal(t, "dark", saved.Origins[0].LocalStorage[0].Value)
	assert.Equal(t, h.recorder.runs[0].BackupPath, wantBackup)
}

func TestRun_FreshVerifyRestoresSavedState(t *testing.T) {
	h := newHarness(t)
	h.site.loginAfter = 2

	res, err := h.runner(t, VerifyFresh, 2*time.Second).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseVerified, res.Phase)

	require.Len(t, h.site.opens, 2)
	saved, _, err := state.Load(h.sessionFile())
	require.NoError(t, err)
	if diff := cmp.Diff(saved, h.site.opens[1]); diff != "" {
		t.Errorf("verification context not seeded from the saved file (-want +got):\n%s", diff)
	}
	assert.True(t, h.site.contexts[1].closed)
}

func TestRun_TimedOut(t *testing.T) {
	h := newHarness(t)

	start := time.Now()
	res, err := h.runner(t, VerifyReload, 60*time.Millisecond).Run(context.Background())
	require.NoError(t, err, "a timeout is not fatal")
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)

	assert.Equal(t, PhaseTimedOut, res.Phase)
	assert.Equal(t, detect.TimedOut, res.Outcome)
	assert.Equal(t, VerdictNone, res.Verdict)
	assert.NoFileExists(t, h.sessionFile())
	assert.Equal(t, 1, h.holder.calls)
	assert.Contains(t, h.reporter.lines, "等待登录超时或出错")

	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, "timed_out", h.recorder.runs[0].Phase)
	assert.Equal(t, "timed_out", h.recorder.runs[0].Outcome)
	assert.Empty(t, h.recorder.runs[0].Verdict)
}

func TestRun_VerifyFailedStillHolds(t *testing.T) {
	h := newHarness(t)
	h.site.loginAfter = 1

	r := h.runner(t, VerifyFresh, time.Second)
	// The saved cookies do not survive into a new context.
	r.opener = &dropCookiesOpener{fakeSite: h.site}
	r.persister = NewPersister(VerifyFresh, r.opener, r.detector, targetURL, nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseVerifyFailed, res.Phase)
	assert.Equal(t, VerifyFailed, res.Verdict)
	assert.Equal(t, 1, h.holder.calls)
	assert.FileExists(t, h.sessionFile())
	assert.Contains(t, h.reporter.lines, "✗ 警告：登录验证可能失败，请手动检查")
}

type dropCookiesOpener struct {
	*fakeSite
	opened int
}

func (o *dropCookiesOpener) Open(ctx context.Context, prior *state.SessionState) (BrowsingContext, error) {
	o.opened++
	if o.opened > 1 {
		prior = nil
		o.loginAfter = 0
	}
	return o.fakeSite.Open(ctx, prior)
}

func TestRun_CorruptStateIsFatalBeforeLaunch(t *testing.T) {
	h := newHarness(t)
	writeFile(t, h.sessionFile(), []byte("{broken"))

	res, err := h.runner(t, VerifyReload, time.Second).Run(context.Background())

	var corrupt *state.CorruptStateError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, PhaseFatal, res.Phase)
	assert.Empty(t, h.site.opens, "browser never opened")
	assert.Zero(t, h.holder.calls, "fatal runs do not hold")

	raw, err := os.ReadFile(h.sessionFile())
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(raw))

	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, "fatal", h.recorder.runs[0].Phase)
	assert.NotEmpty(t, h.recorder.runs[0].Error)
	assert.Empty(t, h.recorder.runs[0].Outcome)
}

func TestRun_LaunchErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.site.openErr = &browser.LaunchError{Bin: "/nope/chrome", Reason: "binary not found", Err: os.ErrNotExist}

	res, err := h.runner(t, VerifyReload, time.Second).Run(context.Background())

	var launch *browser.LaunchError
	require.ErrorAs(t, err, &launch)
	assert.Equal(t, PhaseFatal, res.Phase)
	assert.Equal(t, err, res.Err)
	assert.Zero(t, h.holder.calls)
	assert.Equal(t, 1, h.site.shutdowns)
	assert.Contains(t, h.reporter.lines, "无法启动浏览器 /nope/chrome: binary not found")
}

func TestRun_NavigationErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.site.navErr = errBoom

	res, err := h.runner(t, VerifyReload, time.Second).Run(context.Background())

	var nav *detect.NavigationError
	require.ErrorAs(t, err, &nav)
	assert.Equal(t, targetURL, nav.URL)
	assert.Equal(t, PhaseFatal, res.Phase)
	assert.True(t, h.site.contexts[0].closed)
	assert.NoFileExists(t, h.sessionFile())
}

func TestRun_PersistErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.site.loginAfter = 1
	r := h.runner(t, VerifyReload, time.Second)
	r.opener = &exportFailOpener{fakeSite: h.site}

	res, err := r.Run(context.Background())

	var pe *PersistError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseFatal, res.Phase)
	assert.Equal(t, detect.Completed, res.Outcome)
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, "completed", h.recorder.runs[0].Outcome)
}

type exportFailOpener struct{ *fakeSite }

func (o *exportFailOpener) Open(ctx context.Context, prior *state.SessionState) (BrowsingContext, error) {
	bctx, err := o.fakeSite.Open(ctx, prior)
	if err == nil {
		bctx.(*fakeContext).exportErr = errBoom
	}
	return bctx, err
}

func TestRun_CancelledWhileWaiting(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	res, err := h.runner(t, VerifyReload, 5*time.Second).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseFatal, res.Phase)
	require.Len(t, h.recorder.runs, 1, "interrupted runs are still recorded")
	assert.Equal(t, 1, h.site.shutdowns)
}

func TestHoldUntilClosed(t *testing.T) {
	site := &fakeSite{}
	bctx, err := site.Open(context.Background(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- HoldUntilClosed{}.Hold(context.Background(), bctx) }()

	select {
	case <-done:
		t.Fatal("returned before the window was closed")
	case <-time.After(20 * time.Millisecond):
	}
	require.NoError(t, bctx.Close())
	require.NoError(t, <-done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other, err := site.Open(context.Background(), nil)
	require.NoError(t, err)
	defer other.Close()
	assert.ErrorIs(t, HoldUntilClosed{}.Hold(ctx, other), context.Canceled)
}

func TestPhase(t *testing.T) {
	assert.Equal(t, "awaiting_login", PhaseAwaitingLogin.String())
	assert.True(t, PhaseTimedOut.Holds())
	assert.True(t, PhaseVerifyFailed.Holds())
	assert.False(t, PhaseFatal.Holds())
	assert.False(t, PhasePersisting.Terminal())

	m, err := ParseVerifyMode("")
	require.NoError(t, err)
	assert.Equal(t, VerifyReload, m)
	_, err = ParseVerifyMode("sometimes")
	assert.Error(t, err)
}

func TestNewRunner_RequiresPredicate(t *testing.T) {
	assert.PanicsWithValue(t, "refresh: Options.Predicate is nil", func() {
		NewRunner(Options{SessionFile: "session.json", TargetURL: targetURL}, &fakeSite{}, detect.New(0, nil), nil)
	})
}
