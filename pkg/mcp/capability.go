package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jllopis/crew/pkg/capability"
	"github.com/jllopis/crew/pkg/core"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCaller abstracts MCP tool execution for adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolLister lists the tools a server offers.
type ToolLister interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// Capability exposes one MCP tool as a core.Capability.
type Capability struct {
	tool   mcp.Tool
	caller ToolCaller
}

// NewCapability builds a capability backed by an MCP tool definition and caller.
func NewCapability(tool mcp.Tool, caller ToolCaller) (*Capability, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("tool caller is required")
	}
	return &Capability{tool: tool, caller: caller}, nil
}

// Capabilities adapts every tool the server lists.
func Capabilities(ctx context.Context, c interface {
	ToolLister
	ToolCaller
}) ([]core.Capability, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}
	out := make([]core.Capability, 0, len(tools))
	for _, tool := range tools {
		adapted, err := NewCapability(tool, c)
		if err != nil {
			return nil, err
		}
		out = append(out, adapted)
	}
	return out, nil
}

// Name returns the MCP tool name.
func (c *Capability) Name() string { return c.tool.Name }

// Description returns the MCP tool description.
func (c *Capability) Description() string {
	if c.tool.Description != "" {
		return c.tool.Description
	}
	return "MCP tool " + c.tool.Name
}

// Invoke calls the MCP tool. A JSON object argument is passed through as the
// tool arguments; any other text is bound to the tool's single required
// field, or to "input".
func (c *Capability) Invoke(ctx context.Context, argument string) (string, error) {
	args := c.arguments(argument)
	if err := validateRequiredArgs(c.tool, args); err != nil {
		return "", capability.Unsupported(c.tool.Name, argument, err)
	}

	result, err := c.caller.CallTool(ctx, c.tool.Name, args)
	if err != nil {
		return "", capability.Unreachable(c.tool.Name, argument, err)
	}
	return resultText(c.tool.Name, argument, result)
}

func (c *Capability) arguments(argument string) map[string]any {
	trimmed := strings.TrimSpace(argument)
	if trimmed == "" {
		return map[string]any{}
	}
	if strings.HasPrefix(trimmed, "{") {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	key := "input"
	if req := c.tool.InputSchema.Required; len(req) == 1 {
		key = req[0]
	}
	return map[string]any{key: trimmed}
}

func validateRequiredArgs(tool mcp.Tool, args map[string]any) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	return nil
}

func resultText(name, argument string, result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", capability.Empty(name, argument)
	}
	text := extractTextContent(result.Content)
	if result.IsError {
		return "", capability.Unsupported(name, argument, fmt.Errorf("tool returned error: %s", text))
	}
	if result.StructuredContent != nil {
		encoded, err := json.Marshal(result.StructuredContent)
		if err == nil {
			return string(encoded), nil
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", capability.Empty(name, argument)
	}
	return text, nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Capability = (*Capability)(nil)
