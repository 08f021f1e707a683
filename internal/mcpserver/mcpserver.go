// Package mcpserver exposes guardian discovery as a Model Context Protocol tool.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mcpsek/guardian/internal/logging"
	"github.com/mcpsek/guardian/internal/model"
	"github.com/mcpsek/guardian/internal/pipeline"
)

// Server identity reported during MCP initialization
const (
	Name = "mcp-guardian"

	ToolDiscoverServers = "discover_servers"

	defaultMaxResults = 10
)

// Runner executes discovery requests
type Runner interface {
	Run(ctx context.Context, query string, maxResults int) (*pipeline.Result, error)
}

// Handler serves guardian tool calls
type Handler struct {
	runner Runner
	logger *zap.Logger
}

// NewHandler creates a tool handler over runner
func NewHandler(runner Runner, logger *zap.Logger) *Handler {
	return &Handler{runner: runner, logger: logging.OrNop(logger)}
}

// New creates the MCP server with the guardian tools registered
func New(runner Runner, version string, logger *zap.Logger) *server.MCPServer {
	h := NewHandler(runner, logger)

	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.Tool{
		Name: ToolDiscoverServers,
		Description: "Discover MCP servers matching a capability query across public sources " +
			"and rank them by security posture",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What the server should do, e.g. 'file operations agent'",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of ranked servers to return",
					"minimum":     1,
					"default":     defaultMaxResults,
				},
			},
			Required: []string{"query"},
		},
	}, h.DiscoverServers)

	return s
}

// Serve runs the server over stdio until stdin closes
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// DiscoverServers handles the discover_servers tool
func (h *Handler) DiscoverServers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Query      string `json:"query"`
		MaxResults *int   `json:"max_results"`
	}{}

	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}

	maxResults := defaultMaxResults
	if args.MaxResults != nil {
		maxResults = *args.MaxResults
	}

	res, err := h.runner.Run(ctx, args.Query, maxResults)
	if err != nil {
		if !errors.Is(err, model.ErrInvalidArgument) {
			h.logger.Warn("discover_servers failed", zap.String("query", args.Query), zap.Error(err))
		}
		return mcp.NewToolResultError(fmt.Sprintf("Discovery failed: %v", err)), nil
	}

	return mcp.NewToolResultStructuredOnly(res), nil
}
