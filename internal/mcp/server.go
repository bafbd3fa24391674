// Package mcp exposes trail analysis to MCP clients over stdio. An agent
// points ormcost_analyze at a trail file and gets the full report back;
// ormcost_summary returns just the findings worth acting on.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Config holds MCP server configuration.
type Config struct {
	Version string
}

// Server wraps the MCP SDK server with the trail analysis tools.
type Server struct {
	mcpServer *mcpsdk.Server
}

// New creates an MCP server with the analysis tools registered.
func New(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "ormcost",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all ormcost tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "ormcost_analyze",
		Description: "Analyze a query trail file (.jsonl) and return the full report: query groups by origin, fetched vs consumed fields per shape, duplicate statements, and warnings.",
	}, s.handleAnalyze)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "ormcost_summary",
		Description: "Analyze a query trail file (.jsonl) and return a compact summary: over-fetched fields per origin, duplicate statement counts, and dependent query totals.",
	}, s.handleSummary)
}
