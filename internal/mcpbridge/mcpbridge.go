// Package mcpbridge connects external Model Context Protocol servers and
// exposes their tools as regular [tools.Tool] values, so MCP tools register
// on the same registry as the built-in sources. Servers speak stdio or
// streamable HTTP via the official MCP Go SDK.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and errors. Must be unique.
	Name string

	// Transport selects the connection mechanism.
	Transport Transport

	// Command is the executable plus arguments for stdio servers,
	// split on spaces. Ignored for streamable-http.
	Command string

	// URL is the endpoint for streamable-http servers. Ignored for stdio.
	URL string

	// Env holds additional environment variables for stdio servers. May be nil.
	Env map[string]string
}

// Validate reports the first problem with the config.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp bridge: server config must have a non-empty name")
	}
	if !c.Transport.IsValid() {
		return fmt.Errorf("mcp bridge: unknown transport %q for server %q", c.Transport, c.Name)
	}
	if c.Transport == TransportStdio && strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("mcp bridge: stdio server %q requires a non-empty command", c.Name)
	}
	if c.Transport == TransportStreamableHTTP && c.URL == "" {
		return fmt.Errorf("mcp bridge: streamable-http server %q requires a non-empty url", c.Name)
	}
	return nil
}

// Bridge is a [tools.Source] backed by external MCP servers. Tools become
// available after Init has connected the configured servers.
type Bridge struct {
	configs []ServerConfig

	// client is reused across all server connections; the SDK allows one
	// Client to manage multiple sessions.
	client *mcpsdk.Client

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession
	tools    []tools.Tool
}

var _ tools.Source = (*Bridge)(nil)
var _ tools.Initializer = (*Bridge)(nil)
var _ tools.Closer = (*Bridge)(nil)

// New constructs a bridge for the given server configs.
func New(configs []ServerConfig) *Bridge {
	return &Bridge{
		configs: configs,
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "voxhaus", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// Name implements [tools.Source].
func (b *Bridge) Name() string { return "mcp" }

// Init connects every configured server and imports its tool catalogue.
// One unreachable server fails the whole source; the registry construction
// then skips it without taking down the built-in tools.
func (b *Bridge) Init(ctx context.Context) error {
	for _, cfg := range b.configs {
		if err := cfg.Validate(); err != nil {
			return err
		}

		var transport mcpsdk.Transport
		switch cfg.Transport {
		case TransportStdio:
			executable, args := splitCommand(cfg.Command)
			cmd := exec.CommandContext(ctx, executable, args...)
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
			transport = &mcpsdk.CommandTransport{Command: cmd}
		case TransportStreamableHTTP:
			transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
		}

		if err := b.connectServer(ctx, cfg.Name, transport); err != nil {
			return err
		}
	}
	return nil
}

// connectServer establishes one session and wraps its tools.
func (b *Bridge) connectServer(ctx context.Context, name string, transport mcpsdk.Transport) error {
	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp bridge: failed to connect to server %q: %w", name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp bridge: failed to list tools for server %q: %w", name, err)
		}
		discovered = append(discovered, tool)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.sessions[name]; ok {
		_ = old.Close()
	}
	b.sessions[name] = session

	for _, mcpTool := range discovered {
		b.tools = append(b.tools, tools.Tool{
			Definition: backend.ToolDefinition{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  schemaToMap(mcpTool.InputSchema),
			},
			Handler: b.callHandler(session, mcpTool.Name),
		})
	}

	slog.Info("MCP server connected", "server", name, "tools", len(discovered))
	return nil
}

// callHandler adapts one remote tool to the registry handler signature.
func (b *Bridge) callHandler(session *mcpsdk.ClientSession, toolName string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var argsMap map[string]any
		if args != "" && args != "{}" {
			if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
				return "", fmt.Errorf("mcp bridge: invalid args JSON for tool %q: %w", toolName, err)
			}
		}

		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      toolName,
			Arguments: argsMap,
		})
		if err != nil {
			return "", fmt.Errorf("mcp bridge: call to tool %q failed: %w", toolName, err)
		}

		var sb strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if result.IsError {
			return "", fmt.Errorf("mcp bridge: tool %q: %s", toolName, sb.String())
		}
		return sb.String(), nil
	}
}

// Tools implements [tools.Source]. Empty before Init has run.
func (b *Bridge) Tools() []tools.Tool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]tools.Tool, len(b.tools))
	copy(out, b.tools)
	return out
}

// Close shuts down all server sessions.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, session := range b.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp bridge: close server %q: %w", name, err)
		}
		delete(b.sessions, name)
	}
	return firstErr
}

// splitCommand separates an executable path from its arguments.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// schemaToMap converts any schema value to a plain map for tool definitions.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
