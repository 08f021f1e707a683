package main

import (
	"github.com/spf13/cobra"

	"github.com/mcpsek/guardian/internal/mcpserver"
)

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the discover_servers tool over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			c.logger.Info("serving mcp over stdio")
			return mcpserver.Serve(mcpserver.New(a.pipeline, version, c.logger.Named("mcp")))
		},
	}
}
