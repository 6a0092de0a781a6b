// Command gongkao refreshes the saved login session of a site by opening a
// real browser, waiting for a human to log in, and saving what the browser
// ends up holding.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jinzenshi/gongkao/internal/config"
	"github.com/jinzenshi/gongkao/internal/logging"
)

// version is set at build time.
var version = "dev"

var (
	// Global flags
	configPath string
	verbose    bool

	cfg           *config.Config
	logger        *zap.Logger
	loggerCleanup func()
)

// reportedError marks an error the operator has already been shown.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gongkao",
		Short: "Refresh a saved browser login session",
		Long: `gongkao keeps a session.json of cookies and web storage usable.

It backs up the current file, opens Chrome with the saved state, waits while
you log in by scanning the QR code, then saves and verifies the new state.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Logging.Validate(); err != nil {
				return err
			}
			logger, loggerCleanup, err = logging.New(logging.Options{
				Level:   cfg.Logging.Level,
				Format:  cfg.Logging.Format,
				File:    cfg.LogFile(),
				Verbose: verbose,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logging.For(logger, logging.CategoryBoot).Debug("Configuration loaded",
				zap.String("config", configPath),
				zap.String("dir", cfg.Dir()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if loggerCleanup != nil {
				loggerCleanup()
				loggerCleanup = nil
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "Path to the configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and show phase changes")

	root.AddCommand(
		newRefreshCmd(),
		newInspectCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if loggerCleanup != nil {
		loggerCleanup()
	}
	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
