package mcp

import (
	"context"
	"errors"

	"github.com/jllopis/crew/pkg/capability"
	"github.com/jllopis/crew/pkg/core"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server publishes crew capabilities as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}
}

// AddCapability registers c as a tool taking a single string "input".
func (s *Server) AddCapability(c core.Capability) {
	tool := mcp.NewTool(c.Name(),
		mcp.WithDescription(c.Description()),
		mcp.WithString("input", mcp.Required(), mcp.Description("Capability argument")),
	)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := request.RequireString("input")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := c.Invoke(ctx, input)
		if err != nil {
			var ce *capability.Error
			if errors.As(err, &ce) {
				return mcp.NewToolResultError(ce.Error()), nil
			}
			return nil, err
		}
		return mcp.NewToolResultText(out), nil
	})
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves the registered capabilities on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
