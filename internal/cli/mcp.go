package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ormcostmcp "github.com/krishiv1545/django-orm-cost/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP analysis server for agent integration",
	Long: "Runs ormcost as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes trail analysis tools: ormcost_analyze, ormcost_summary.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv := ormcostmcp.New(ormcostmcp.Config{Version: version})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "ormcost MCP server running on stdio")
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
