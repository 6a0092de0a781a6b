package refresh

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jinzenshi/gongkao/internal/detect"
	"github.com/jinzenshi/gongkao/internal/logging"
	"github.com/jinzenshi/gongkao/internal/state"
)

// PersistError reports that the captured state could not be saved.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist session to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Persister saves the state of a logged-in context and checks that the
// saved state still shows the marker.
type Persister struct {
	mode      VerifyMode
	opener    Opener
	detector  *detect.Detector
	targetURL string
	log       *zap.Logger
}

// NewPersister returns a Persister. opener and targetURL are only used in
// VerifyFresh mode.
func NewPersister(mode VerifyMode, opener Opener, detector *detect.Detector, targetURL string, logger *zap.Logger) *Persister {
	if mode == "" {
		mode = VerifyReload
	}
	return &Persister{
		mode:      mode,
		opener:    opener,
		detector:  detector,
		targetURL: targetURL,
		log:       logging.For(logger, logging.CategoryPersist),
	}
}

// Mode returns the verification mode.
func (p *Persister) Mode() VerifyMode { return p.mode }

// PersistAndVerify exports bctx, writes it to path and verifies the result.
// Only a failed save is an error; a failed verification is a verdict.
func (p *Persister) PersistAndVerify(ctx context.Context, bctx BrowsingContext, path string, pred detect.Predicate) (Verdict, error) {
	if err := p.Persist(ctx, bctx, path); err != nil {
		return VerdictNone, err
	}
	return p.Verify(ctx, bctx, path, pred), nil
}

// Persist exports the context's cookies and storage and atomically replaces
// the canonical file. Errors are *PersistError.
func (p *Persister) Persist(ctx context.Context, bctx BrowsingContext, path string) error {
	st, err := bctx.ExportState(ctx)
	if err != nil {
		return &PersistError{Path: path, Err: fmt.Errorf("export state: %w", err)}
	}
	if err := state.WriteAtomic(path, st); err != nil {
		return &PersistError{Path: path, Err: err}
	}
	p.log.Info("Session saved",
		zap.String("path", path),
		zap.Int("cookies", len(st.Cookies)),
		zap.Int("origins", len(st.Origins)))
	return nil
}

// Verify checks the saved state once. It never retries.
func (p *Persister) Verify(ctx context.Context, bctx BrowsingContext, path string, pred detect.Predicate) Verdict {
	var (
		ok  bool
		err error
	)
	switch p.mode {
	case VerifyFresh:
		ok, err = p.verifyFresh(ctx, path, pred)
	default:
		ok, err = p.verifyReload(ctx, bctx, pred)
	}

	if err != nil {
		p.log.Warn("Verification failed", zap.String("mode", string(p.mode)), zap.Error(err))
		return VerifyFailed
	}
	if !ok {
		p.log.Warn("Marker missing after save", zap.String("mode", string(p.mode)), zap.Stringer("predicate", pred))
		return VerifyFailed
	}
	p.log.Info("Session verified", zap.String("mode", string(p.mode)))
	return VerifiedOk
}

func (p *Persister) verifyReload(ctx context.Context, bctx BrowsingContext, pred detect.Predicate) (bool, error) {
	if err := bctx.Reload(ctx); err != nil {
		return false, fmt.Errorf("reload: %w", err)
	}
	return p.detector.CheckOnce(ctx, bctx, pred)
}

func (p *Persister) verifyFresh(ctx context.Context, path string, pred detect.Predicate) (bool, error) {
	if p.opener == nil {
		return false, errors.New("no opener for fresh verification")
	}
	st, _, err := state.Load(path)
	if err != nil {
		return false, err
	}
	if st == nil {
		return false, fmt.Errorf("%s disappeared after save", path)
	}

	fresh, err := p.opener.Open(ctx, st)
	if err != nil {
		return false, fmt.Errorf("open verification context: %w", err)
	}
	defer func() {
		if err := fresh.Close(); err != nil {
			p.log.Debug("Verification context close failed", zap.Error(err))
		}
	}()

	if err := fresh.Navigate(ctx, p.targetURL); err != nil {
		return false, &detect.NavigationError{URL: p.targetURL, Err: err}
	}
	return p.detector.CheckOnce(ctx, fresh, pred)
}
