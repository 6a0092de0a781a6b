// Package refresh runs one session refresh: restore the saved state, open
// the browser, wait for the operator to log in, save and verify the new
// state, then keep the window open until the operator is done with it.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jinzenshi/gongkao/internal/browser"
	"github.com/jinzenshi/gongkao/internal/detect"
	"github.com/jinzenshi/gongkao/internal/journal"
	"github.com/jinzenshi/gongkao/internal/logging"
	"github.com/jinzenshi/gongkao/internal/state"
)

const tracerName = "github.com/jinzenshi/gongkao/internal/refresh"

// Options describe one run.
type Options struct {
	SessionFile  string
	BackupDir    string // empty = directory of SessionFile
	TargetURL    string
	Predicate    detect.Predicate
	LoginTimeout time.Duration
	VerifyMode   VerifyMode
	Now          func() time.Time
}

// Recorder stores the outcome of a run.
type Recorder interface {
	Record(ctx context.Context, run journal.Run) error
}

// Result summarizes a run. Phase is the terminal phase reached before the
// browser was held open.
type Result struct {
	RunID      string
	Phase      Phase
	Outcome    detect.Outcome
	Verdict    Verdict
	BackupPath string
	Err        error
	Started    time.Time
	Finished   time.Time

	awaited bool // Outcome is meaningful
}

// Option customizes a Runner.
type Option func(*Runner)

// WithHolder replaces the hold-open policy (default HoldUntilClosed).
func WithHolder(h Holder) Option { return func(r *Runner) { r.holder = h } }

// WithReporter sets where operator messages go.
func WithReporter(rep Reporter) Option { return func(r *Runner) { r.report = rep } }

// WithRecorder records every run, typically into the journal.
func WithRecorder(rec Recorder) Option { return func(r *Runner) { r.recorder = rec } }

// WithTracer sets the tracer for stage spans.
func WithTracer(t trace.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// Runner drives the refresh state machine.
type Runner struct {
	opts      Options
	opener    Opener
	detector  *detect.Detector
	persister *Persister
	holder    Holder
	report    Reporter
	recorder  Recorder
	tracer    trace.Tracer
	logger    *zap.Logger
	log       *zap.Logger
}

// NewRunner wires a runner. The opener is shut down at the end of Run. It
// panics if opts.Predicate is nil.
func NewRunner(opts Options, opener Opener, detector *detect.Detector, logger *zap.Logger, options ...Option) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Predicate == nil {
		panic("refresh: Options.Predicate is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		opts:      opts,
		opener:    opener,
		detector:  detector,
		persister: NewPersister(opts.VerifyMode, opener, detector, opts.TargetURL, logger),
		holder:    HoldUntilClosed{},
		report:    NopReporter{},
		logger:    logger,
		log:       logging.For(logger, logging.CategoryBoot),
	}
	for _, o := range options {
		o(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// Run performs one refresh. It returns an error only for fatal phases; a
// timeout or failed verification is reported in Result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString(), Phase: PhaseStart, Started: r.opts.Now()}
	ctx, span := r.tracer.Start(ctx, "refresh.run", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("target.url", r.opts.TargetURL),
	))
	defer span.End()

	log := r.log.With(zap.String("run", res.RunID))
	log.Info("Refresh started",
		zap.String("session_file", r.opts.SessionFile),
		zap.String("target", r.opts.TargetURL),
		zap.Stringer("predicate", r.opts.Predicate))

	defer func() {
		if err := r.opener.Shutdown(); err != nil {
			log.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	// Restoring
	r.enter(&res, PhaseRestoring)
	snap, err := r.restore(ctx)
	if err != nil {
		return r.fatal(ctx, span, &res, err)
	}
	res.BackupPath = snap.BackupPath

	// BrowserOpen
	r.enter(&res, PhaseBrowserOpen)
	bctx, err := r.open(ctx, snap.State)
	if err != nil {
		return r.fatal(ctx, span, &res, err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			log.Debug("Browsing context close failed", zap.Error(err))
		}
	}()

	// AwaitingLogin
	r.enter(&res, PhaseAwaitingLogin)
	res.Outcome, err = r.awaitLogin(ctx, bctx)
	if err != nil {
		return r.fatal(ctx, span, &res, err)
	}
	res.awaited = true

	if res.Outcome == detect.TimedOut {
		r.report.Error("等待登录超时或出错")
		r.report.Hint("如果已经登录成功，请手动关闭浏览器...")
		r.finish(ctx, &res, PhaseTimedOut)
	} else {
		r.report.Success("检测到登录成功！正在保存新的session...")
		r.enter(&res, PhasePersisting)
		if err := r.persist(ctx, bctx); err != nil {
			return r.fatal(ctx, span, &res, err)
		}
		r.report.Success("新session已保存到: " + r.opts.SessionFile)

		res.Verdict = r.verify(ctx, bctx)
		if res.Verdict == VerifiedOk {
			r.report.Success("✓ 登录验证成功！")
			r.finish(ctx, &res, PhaseVerified)
		} else {
			r.report.Warn("✗ 警告：登录验证可能失败，请手动检查")
			r.finish(ctx, &res, PhaseVerifyFailed)
		}
	}
	span.SetAttributes(attribute.String("run.phase", res.Phase.String()))

	if res.Phase.Holds() {
		r.report.Phase(PhaseHoldOpen)
		r.report.Info("浏览器将保持打开状态以便确认。")
		r.report.Hint("确认登录成功后，请关闭浏览器窗口。")
		if err := r.holder.Hold(ctx, bctx); err != nil {
			log.Info("Hold ended", zap.Error(err))
		}
	}
	log.Info("Refresh finished",
		zap.Stringer("phase", res.Phase),
		zap.Duration("elapsed", res.Finished.Sub(res.Started)))
	return res, nil
}

func (r *Runner) enter(res *Result, p Phase) {
	res.Phase = p
	r.report.Phase(p)
	r.log.Debug("Phase", zap.String("run", res.RunID), zap.Stringer("phase", p))
}

func (r *Runner) restore(ctx context.Context) (*state.Snapshot, error) {
	_, span := r.tracer.Start(ctx, "restore")
	defer span.End()
	log := logging.For(r.logger, logging.CategoryState)

	snap, err := state.LoadAndBackup(r.opts.SessionFile, r.opts.BackupDir, r.opts.Now())
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	switch {
	case !snap.Exists():
		log.Info("No saved session, starting empty", zap.String("path", r.opts.SessionFile))
		r.report.Info("未找到旧session，将使用空白浏览器")
	case snap.BackupErr != nil:
		log.Warn("Backup failed, continuing", zap.String("path", snap.BackupPath), zap.Error(snap.BackupErr))
		r.report.Warn(fmt.Sprintf("备份旧session失败: %v", snap.BackupErr))
		snap.BackupPath = ""
	default:
		log.Info("Previous session backed up", zap.String("backup", snap.BackupPath))
		r.report.Info("已备份旧session到: " + snap.BackupPath)
	}
	span.SetAttributes(
		attribute.Bool("state.exists", snap.Exists()),
		attribute.String("state.backup", snap.BackupPath))
	return snap, nil
}

func (r *Runner) open(ctx context.Context, prior *state.SessionState) (BrowsingContext, error) {
	ctx, span := r.tracer.Start(ctx, "open", trace.WithAttributes(attribute.Bool("state.seeded", prior != nil)))
	defer span.End()

	bctx, err := r.opener.Open(ctx, prior)
	endSpan(span, err)
	return bctx, err
}

func (r *Runner) awaitLogin(ctx context.Context, bctx BrowsingContext) (detect.Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "await_login", trace.WithAttributes(
		attribute.String("predicate", r.opts.Predicate.String()),
		attribute.Int64("timeout_ms", r.opts.LoginTimeout.Milliseconds())))
	defer span.End()

	r.report.Info(fmt.Sprintf("正在打开 %s...", r.opts.TargetURL))
	r.report.Info("页面加载后，等待用户登录...")
	r.report.Hint("请点击右上角的「登录」按钮，使用微信扫码登录")
	r.report.Hint("登录成功后，程序会自动保存新的session")

	outcome, err := r.detector.AwaitLogin(ctx, bctx, r.opts.TargetURL, r.opts.Predicate, r.opts.LoginTimeout)
	endSpan(span, err)
	if err == nil {
		span.SetAttributes(attribute.String("outcome", outcome.String()))
	}
	return outcome, err
}

func (r *Runner) persist(ctx context.Context, bctx BrowsingContext) error {
	ctx, span := r.tracer.Start(ctx, "persist", trace.WithAttributes(attribute.String("path", r.opts.SessionFile)))
	defer span.End()

	err := r.persister.Persist(ctx, bctx, r.opts.SessionFile)
	endSpan(span, err)
	return err
}

func (r *Runner) verify(ctx context.Context, bctx BrowsingContext) Verdict {
	ctx, span := r.tracer.Start(ctx, "verify", trace.WithAttributes(attribute.String("mode", string(r.persister.Mode()))))
	defer span.End()

	r.report.Info("验证登录状态...")
	v := r.persister.Verify(ctx, bctx, r.opts.SessionFile, r.opts.Predicate)
	span.SetAttributes(attribute.String("verdict", v.String()))
	return v
}

// finish moves the run into a terminal phase and records it.
func (r *Runner) finish(ctx context.Context, res *Result, p Phase) {
	r.enter(res, p)
	res.Finished = r.opts.Now()
	r.record(ctx, res)
}

func (r *Runner) fatal(ctx context.Context, span trace.Span, res *Result, err error) (Result, error) {
	res.Err = err
	endSpan(span, err)
	r.finish(ctx, res, PhaseFatal)
	r.report.Error(describe(err))
	r.log.Error("Refresh failed", zap.String("run", res.RunID), zap.Error(err))
	return *res, err
}

func (r *Runner) record(ctx context.Context, res *Result) {
	if r.recorder == nil {
		return
	}
	run := journal.Run{
		ID:          res.RunID,
		Started:     res.Started,
		Finished:    res.Finished,
		Phase:       res.Phase.String(),
		TargetURL:   r.opts.TargetURL,
		SessionFile: r.opts.SessionFile,
		BackupPath:  res.BackupPath,
	}
	if res.awaited {
		run.Outcome = res.Outcome.String()
	}
	if res.Verdict != VerdictNone {
		run.Verdict = res.Verdict.String()
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	// The run is over even when the operator interrupted it.
	if err := r.recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.For(r.logger, logging.CategoryJournal).Warn("Failed to record run", zap.Error(err))
	}
}

// describe turns a fatal error into the operator-facing line.
func describe(err error) string {
	var (
		corrupt *state.CorruptStateError
		launch  *browser.LaunchError
		nav     *detect.NavigationError
		persist *PersistError
	)
	switch {
	case errors.As(err, &corrupt):
		return fmt.Sprintf("session文件已损坏，请检查或删除: %v", corrupt)
	case errors.As(err, &launch):
		return fmt.Sprintf("无法启动浏览器 %s: %s", launch.Bin, launch.Reason)
	case errors.As(err, &nav):
		return fmt.Sprintf("无法打开页面 %s: %v", nav.URL, nav.Err)
	case errors.As(err, &persist):
		return fmt.Sprintf("保存session失败: %v", persist.Err)
	case errors.Is(err, context.Canceled):
		return "已取消"
	}
	return err.Error()
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
