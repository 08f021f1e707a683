package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

func newDiscoverCmd(c *cli) *cobra.Command {
	var (
		maxResults int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "discover <query>",
		Short: "Discover and rank MCP servers for a capability query",
		Example: `  guardian discover "file operations agent" --max 5
  guardian discover slack --providers catalog --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*c.cfg.TimeBudget)
			defer cancel()

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.pipeline.Run(ctx, strings.Join(args, " "), maxResults)
			if err != nil {
				return err
			}
			if asJSON {
				return renderJSON(cmd.OutOrStdout(), res)
			}
			return renderResults(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max", "n", 10, "maximum number of ranked servers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
