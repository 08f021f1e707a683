package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List recorded pipeline runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid run id %q: %w", args[0], err)
				}
				run, err := a.recorder.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("get run %s: %w", id, err)
				}
				return renderJSON(cmd.OutOrStdout(), run)
			}

			records, err := a.recorder.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			return renderRuns(cmd.OutOrStdout(), records, time.Now())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of runs to list")
	return cmd
}
