package cmd

import (
	"github.com/agentic-research/lsf/internal/mcpserver"
	"github.com/spf13/cobra"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp <root>",
	Short: "Serve the index as MCP tools over stdio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd.Context(), args[0], refresh)
		if err != nil {
			return err
		}
		defer e.close()

		srv := mcpserver.New(e.hot, compileQuery, e.issuer, Version)
		return srv.ServeStdio()
	},
}

func init() {
	serveMCPCmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cache and re-walk the root")
	rootCmd.AddCommand(serveMCPCmd)
}
