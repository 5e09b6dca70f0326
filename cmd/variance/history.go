package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/variance-engine/cli"
	"github.com/warp/variance-engine/variance"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		orgID   string
		boardID string
		limit   int
		runID   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs for an org/board, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := root.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if runID != "" {
				run, err := e.store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				if root.jsonOut {
					return writeJSON(cmd.OutOrStdout(), run)
				}
				fmt.Fprint(cmd.OutOrStdout(), cli.RenderRun(run))
				return nil
			}

			runs, err := e.store.ListRuns(ctx, orgID, boardID, limit)
			if err != nil {
				return err
			}
			if root.jsonOut {
				if runs == nil {
					runs = []variance.AnalysisRun{}
				}
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderHistory(runs))
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "local", "Organization ID")
	cmd.Flags().StringVar(&boardID, "board", "default", "Budget board ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show one run in full")

	return cmd
}
