// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcptool registers tools discovered from an external MCP server
// as toolhost.Definitions. Discovery connects once over stdio, lists the
// server's tools, and wraps each as a handler that forwards the call to
// the same long-lived client connection.
//
// Only the stdio transport is implemented: it is the dominant MCP
// deployment pattern (a locally spawned subprocess) and keeps this
// adaptation auditable as a single request/response path. SSE and
// streamable-HTTP transports add a second JSON-RPC-over-HTTP code path
// whose only purpose is to reach a remote MCP server; that case is
// already covered by registering such a server's tools through webtool
// instead.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/swarmhive/swarmd/pkg/toolhost"
)

// Config configures a connection to a single stdio-transport MCP server.
type Config struct {
	// Name identifies this server in logs and metrics.
	Name string

	// Command and Args launch the MCP server subprocess.
	Command string
	Args    []string
	Env     map[string]string

	// Filter restricts which of the server's tools are registered. A nil
	// or empty Filter registers every tool the server advertises.
	Filter []string

	// CallTimeout bounds a single tool call. Defaults to 30s.
	CallTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
}

// Client owns the subprocess connection backing one or more registered
// tool definitions. Callers must Close it when the server is no longer
// needed.
type Client struct {
	cfg Config
	mcp *client.Client
}

// Connect launches the MCP server subprocess, performs the MCP
// initialize handshake, and returns a Client ready for Discover.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	cfg.setDefaults()

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, convertEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcptool: start %q: %w", cfg.Name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcptool: start %q: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.ClientInfo = mcp.Implementation{Name: "swarmd", Version: "1.0.0"}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcptool: initialize %q: %w", cfg.Name, err)
	}

	return &Client{cfg: cfg, mcp: mcpClient}, nil
}

// Close terminates the underlying subprocess.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// Discover lists the server's tools and returns a toolhost.Definition per
// tool that survives Config.Filter. Each Definition's Handler forwards
// the call over this Client's connection and is only valid while the
// Client remains open.
func (c *Client) Discover(ctx context.Context) ([]toolhost.Definition, error) {
	allowed := map[string]bool(nil)
	if len(c.cfg.Filter) > 0 {
		allowed = make(map[string]bool, len(c.cfg.Filter))
		for _, name := range c.cfg.Filter {
			allowed[name] = true
		}
	}

	listResp, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcptool: list tools on %q: %w", c.cfg.Name, err)
	}

	defs := make([]toolhost.Definition, 0, len(listResp.Tools))
	for _, remote := range listResp.Tools {
		if allowed != nil && !allowed[remote.Name] {
			continue
		}

		def := toolhost.Definition{
			Name:        remote.Name,
			Description: remote.Description,
			Class:       toolhost.ClassExternal,
			Schema:      convertSchema(remote.InputSchema),
			Policy: toolhost.Policy{
				Class:          toolhost.ClassExternal,
				RequestTimeout: c.cfg.CallTimeout,
			},
			Handler: c.callHandler(remote.Name),
			Version: c.cfg.Name,
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (c *Client) callHandler(name string) toolhost.Handler {
	return func(ctx toolhost.Context, args map[string]any) (map[string]any, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args

		resp, err := c.mcp.CallTool(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("mcp call %q failed: %w", name, err)
		}
		return parseToolResult(resp)
	}
}

func parseToolResult(resp *mcp.CallToolResult) (map[string]any, error) {
	if resp.IsError {
		for _, content := range resp.Content {
			if text, ok := content.(mcp.TextContent); ok {
				return nil, fmt.Errorf("%s", text.Text)
			}
		}
		return nil, fmt.Errorf("mcp tool call returned an unspecified error")
	}

	var texts []string
	for _, content := range resp.Content {
		if text, ok := content.(mcp.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}

	switch len(texts) {
	case 0:
		return map[string]any{}, nil
	case 1:
		return map[string]any{"result": texts[0]}, nil
	default:
		return map[string]any{"results": texts}, nil
	}
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func convertEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
