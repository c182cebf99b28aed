package mcpbridge

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type greetInput struct {
	Name string `json:"name"`
}

// newTestServer runs an in-memory MCP server with a single greet tool and
// returns the client-side transport connected to it.
func newTestServer(t *testing.T) mcpsdk.Transport {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "testserver", Version: "1.0.0"}, nil)
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "greet",
		Description: "greets someone by name",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, in greetInput) (*mcpsdk.CallToolResult, any, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "Hallo " + in.Name}},
		}, nil, nil
	})

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	session, err := server.Connect(context.Background(), serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	return clientTransport
}

func TestConnectServerImportsTools(t *testing.T) {
	b := New(nil)
	defer b.Close()

	if err := b.connectServer(context.Background(), "testserver", newTestServer(t)); err != nil {
		t.Fatalf("connectServer: %v", err)
	}

	got := b.Tools()
	if len(got) != 1 {
		t.Fatalf("got %d tools, want 1", len(got))
	}
	if got[0].Definition.Name != "greet" {
		t.Errorf("tool name = %q", got[0].Definition.Name)
	}
	if got[0].Definition.Parameters["type"] != "object" {
		t.Errorf("schema not converted: %v", got[0].Definition.Parameters)
	}
}

func TestHandlerRoutesCallToServer(t *testing.T) {
	b := New(nil)
	defer b.Close()

	if err := b.connectServer(context.Background(), "testserver", newTestServer(t)); err != nil {
		t.Fatalf("connectServer: %v", err)
	}

	out, err := b.Tools()[0].Handler(context.Background(), `{"name": "Welt"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if out != "Hallo Welt" {
		t.Errorf("got %q", out)
	}
}

func TestServerConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ServerConfig
		wantErr string
	}{
		{"missing name", ServerConfig{Transport: TransportStdio, Command: "x"}, "non-empty name"},
		{"bad transport", ServerConfig{Name: "a", Transport: "carrier-pigeon"}, "unknown transport"},
		{"stdio without command", ServerConfig{Name: "a", Transport: TransportStdio}, "non-empty command"},
		{"http without url", ServerConfig{Name: "a", Transport: TransportStreamableHTTP}, "non-empty url"},
		{"valid stdio", ServerConfig{Name: "a", Transport: TransportStdio, Command: "/bin/server --flag"}, ""},
		{"valid http", ServerConfig{Name: "a", Transport: TransportStreamableHTTP, URL: "http://localhost:1234/mcp"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("got %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestSplitCommand(t *testing.T) {
	exe, args := splitCommand("/usr/local/bin/mcp-server --config /etc/mcp.json")
	if exe != "/usr/local/bin/mcp-server" {
		t.Errorf("executable = %q", exe)
	}
	if len(args) != 2 || args[0] != "--config" {
		t.Errorf("args = %v", args)
	}

	if exe, args := splitCommand("  "); exe != "" || args != nil {
		t.Errorf("blank command = %q %v", exe, args)
	}
}

func TestSchemaToMapFallsBackToObject(t *testing.T) {
	if m := schemaToMap(nil); m["type"] != "object" {
		t.Errorf("nil schema = %v", m)
	}
	if m := schemaToMap(make(chan int)); m["type"] != "object" {
		t.Errorf("unmarshalable schema = %v", m)
	}

	got := schemaToMap(map[string]any{"type": "object", "properties": map[string]any{}})
	if _, ok := got["properties"]; !ok {
		t.Errorf("map schema not passed through: %v", got)
	}
}
