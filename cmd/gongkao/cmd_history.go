package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jinzenshi/gongkao/internal/journal"
	"github.com/jinzenshi/gongkao/internal/ux"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent refresh runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.JournalPath()
			if path == "" {
				return errors.New("journal is disabled (journal.path is empty)")
			}
			j, err := journal.Open(path, logger)
			if err != nil {
				return err
			}
			defer j.Close()

			runs, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ux.RenderHistory(out, ux.NewStyles(out), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return cmd
}
