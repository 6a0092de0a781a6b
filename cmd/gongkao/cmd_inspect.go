package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jinzenshi/gongkao/internal/state"
	"github.com/jinzenshi/gongkao/internal/ux"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the saved session without opening a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			styles := ux.NewStyles(out)
			path := cfg.SessionFile()

			st, _, err := state.Load(path)
			if err != nil {
				return err
			}
			backups, err := state.ListBackups(cfg.BackupDir())
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Fprintln(out, styles.Warn.Render("No session file at "+path))
				fmt.Fprintln(out, styles.Hint.Render("Run gongkao refresh to create one."))
				if len(backups) > 0 {
					fmt.Fprintf(out, "%d backup(s) in %s\n", len(backups), cfg.BackupDir())
				}
				return nil
			}

			now := time.Now()
			ux.RenderSummary(out, styles, path, state.Summarize(st, now), backups, now)
			return nil
		},
	}
}
