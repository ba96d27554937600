package toolpool

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/mcp"

	"github.com/ResearAI/ResearStudio/internal/config"
)

// toolInfo is one tool advertised by a connected server.
type toolInfo struct {
	Server      string
	Name        string
	Description string
	Schema      map[string]interface{}
}

// transport is the connection layer under the pool: process launch,
// handshake, tool listing, and raw invocation.
type transport interface {
	connect(ctx context.Context, name string, cfg config.ToolServerConfig) error
	listTools() []toolInfo
	call(ctx context.Context, server, tool string, args map[string]interface{}) (string, error)
	close()
}

// mcpTransport speaks MCP to external tool server processes.
type mcpTransport struct {
	manager *mcp.Manager
}

func newMCPTransport() *mcpTransport {
	return &mcpTransport{manager: mcp.NewManager()}
}

func (t *mcpTransport) connect(ctx context.Context, name string, cfg config.ToolServerConfig) error {
	err := t.manager.Connect(ctx, name, mcp.ServerConfig{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
	})
	if err != nil {
		return err
	}
	if len(cfg.DeniedTools) > 0 {
		t.manager.SetDeniedTools(name, cfg.DeniedTools)
	}
	return nil
}

func (t *mcpTransport) listTools() []toolInfo {
	var out []toolInfo
	for _, item := range t.manager.AllTools() {
		out = append(out, toolInfo{
			Server:      item.Server,
			Name:        item.Tool.Name,
			Description: item.Tool.Description,
			Schema:      item.Tool.InputSchema,
		})
	}
	return out
}

func (t *mcpTransport) call(ctx context.Context, server, tool string, args map[string]interface{}) (string, error) {
	result, err := t.manager.CallTool(ctx, server, tool, args)
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", tool, err)
	}

	var output strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			output.WriteString(c.Text)
		}
	}
	return output.String(), nil
}

func (t *mcpTransport) close() {
	t.manager.Close()
}
