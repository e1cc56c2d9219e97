package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markdown-ticket/mdt/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for coding agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents query and edit change requests natively.
Configure with:

  {
    "mcpServers": {
      "mdt": { "command": "mdt", "args": ["mcp"] }
    }
  }

Available tools: list_projects, list_crs, get_cr, create_cr,
update_cr_status, update_cr_attrs, manage_cr_sections, delete_cr`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := getStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ticketStore, _ := newTicketStore()
		return mcp.NewServer(s, ticketStore).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
