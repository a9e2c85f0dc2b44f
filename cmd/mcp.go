package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/daemon"
	"github.com/joescharf/tracker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an AI assistant read and edit the issue list natively.
Configure it in the assistant with:

  {
    "mcpServers": {
      "tracker": { "command": "tracker", "args": ["mcp"] }
    }
  }

Available tools: tracker_list_issues, tracker_add_issue,
tracker_update_issue, tracker_delete_issue, tracker_add_comment,
tracker_add_action, tracker_update_action, tracker_report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	ctx, stop := signal.NotifyContext(context.Background(), daemon.ShutdownSignals()...)
	defer stop()

	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	defer m.Close()

	return mcp.NewServer(m, s, buildVersion).ServeStdio(ctx)
}
