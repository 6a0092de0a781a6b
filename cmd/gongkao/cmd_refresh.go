package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jinzenshi/gongkao/internal/browser"
	"github.com/jinzenshi/gongkao/internal/config"
	"github.com/jinzenshi/gongkao/internal/detect"
	"github.com/jinzenshi/gongkao/internal/journal"
	"github.com/jinzenshi/gongkao/internal/logging"
	"github.com/jinzenshi/gongkao/internal/refresh"
	"github.com/jinzenshi/gongkao/internal/tracing"
	"github.com/jinzenshi/gongkao/internal/ux"
)

type refreshFlags struct {
	url         string
	marker      string
	markerKind  string
	timeout     time.Duration
	sessionFile string
	browserBin  string
	verifyMode  string
	noHold      bool
	trace       bool
}

func newRefreshCmd() *cobra.Command {
	f := &refreshFlags{}
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Open the browser, wait for login, and save the new session",
		Long: `Backs up the current session file, opens Chrome seeded with it, and waits
for the login marker to appear. Once it does the new state is saved and
checked. The browser stays open until you close it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, cfg)
			return runRefresh(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "", "Page to open and watch")
	fl.StringVar(&f.marker, "marker", "", "Marker that shows the login finished")
	fl.StringVar(&f.markerKind, "marker-kind", "", "How the marker is matched: text, html, selector, regex")
	fl.DurationVar(&f.timeout, "timeout", 0, "How long to wait for the login")
	fl.StringVar(&f.sessionFile, "session-file", "", "Session state file")
	fl.StringVar(&f.browserBin, "browser-bin", "", "Chrome binary")
	fl.StringVar(&f.verifyMode, "verify-mode", "", "How the saved state is checked: reload, fresh")
	fl.BoolVar(&f.noHold, "no-hold", false, "Exit without waiting for the browser to be closed")
	fl.BoolVar(&f.trace, "trace", false, "Write stage spans (to tracing.file or stderr)")
	return cmd
}

// apply copies the flags that were set over c.
func (f *refreshFlags) apply(cmd *cobra.Command, c *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("url") {
		c.Target.URL = f.url
	}
	if fl.Changed("marker") {
		c.Target.Marker = f.marker
	}
	if fl.Changed("marker-kind") {
		c.Target.MarkerKind = f.markerKind
	}
	if fl.Changed("timeout") {
		c.Timeouts.Login = f.timeout.String()
	}
	if fl.Changed("session-file") {
		// Flag paths are relative to the working directory.
		if abs, err := filepath.Abs(f.sessionFile); err == nil {
			c.Session.File = abs
		} else {
			c.Session.File = f.sessionFile
		}
	}
	if fl.Changed("browser-bin") {
		c.Browser.Bin = f.browserBin
	}
	if fl.Changed("verify-mode") {
		c.Verify.Mode = f.verifyMode
	}
	if f.trace {
		c.Tracing.Enabled = true
	}
}

func runRefresh(cmd *cobra.Command, f *refreshFlags) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	pred, err := detect.NewPredicate(cfg.Target.MarkerKind, cfg.Target.Marker)
	if err != nil {
		return err
	}
	mode, err := refresh.ParseVerifyMode(cfg.Verify.Mode)
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Init(cfg.Tracing.Enabled, version, cfg.TraceFile())
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	printer := ux.NewPrinter(cmd.OutOrStdout(), verbose)
	opts := []refresh.Option{refresh.WithReporter(printer)}
	if f.noHold {
		opts = append(opts, refresh.WithHolder(refresh.NoHold{}))
	}

	if path := cfg.JournalPath(); path != "" {
		j, err := journal.Open(path, logger)
		if err != nil {
			// The refresh matters more than its history.
			logging.For(logger, logging.CategoryJournal).Warn("Journal unavailable", zap.Error(err))
		} else {
			defer j.Close()
			opts = append(opts, refresh.WithRecorder(j))
		}
	}

	mgr := browser.NewManager(browser.Config{
		Bin:               cfg.Browser.Bin,
		Flags:             cfg.Browser.Flags,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.GetNavigationTimeout(),
		NetworkIdle:       cfg.GetNetworkIdle(),
	}, logger)

	runner := refresh.NewRunner(refresh.Options{
		SessionFile:  cfg.SessionFile(),
		BackupDir:    cfg.BackupDir(),
		TargetURL:    cfg.Target.URL,
		Predicate:    pred,
		LoginTimeout: cfg.GetLoginTimeout(),
		VerifyMode:   mode,
	}, refresh.BrowserOpener(mgr), detect.New(cfg.GetPollInterval(), logger, detect.WithCheckTimeout(cfg.GetNavigationTimeout())), logger, opts...)

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return &reportedError{err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), printer.Styles().Muted.Render(
		fmt.Sprintf("run %s: %s", res.RunID, res.Phase)))
	return nil
}
