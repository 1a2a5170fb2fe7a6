// Package mcptools exposes the tools of an MCP server started as a
// subprocess to the assistant.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"topic-chatter/internal/llm"
)

type session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

type Client struct {
	session session
	logger  *zap.Logger
}

// Connect starts the server at serverPath and opens a session over stdio.
func Connect(ctx context.Context, serverPath string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mcp")

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "topic-chatter",
		Version: "1.0.0",
	}, nil)
	transport := mcp.NewCommandTransport(exec.CommandContext(ctx, serverPath))
	sess, err := client.Connect(ctx, transport)
	if err != nil {
		return nil, fmt.Errorf("connect to MCP server %s: %w", serverPath, err)
	}
	logger.Info("connected to MCP server", zap.String("path", serverPath))
	return &Client{session: sess, logger: logger}, nil
}

func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// Tools lists the server's tools in the shape the model expects.
func (c *Client) Tools(ctx context.Context) ([]llm.Tool, error) {
	res, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list MCP tools: %w", err)
	}
	tools := make([]llm.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		if t == nil {
			continue
		}
		params, err := schemaMap(t.InputSchema)
		if err != nil {
			c.logger.Warn("skipping tool with unreadable schema", zap.String("tool", t.Name), zap.Error(err))
			continue
		}
		tools = append(tools, llm.Tool{Name: t.Name, Description: t.Description, Parameters: params})
	}
	return tools, nil
}

func schemaMap(schema any) (map[string]any, error) {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	if schema == nil {
		return out, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CallTool runs a tool and returns its text content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.logger.Debug("calling tool", zap.String("tool", name))
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	var b strings.Builder
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	if res.IsError {
		msg := b.String()
		if msg == "" {
			msg = "tool returned an error"
		}
		return "", errors.New(msg)
	}
	return b.String(), nil
}
