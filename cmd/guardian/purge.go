package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpsek/guardian/internal/model"
)

func newPurgeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries from the result cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cache == nil {
				return fmt.Errorf("purge: %w", model.ErrCacheUnavailable)
			}
			n, err := a.cache.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired cache entries\n", n)
			return nil
		},
	}
}
