// Package tools defines the shared [Tool] type used by all built-in tool
// packages and the [Registry] that dispatches model-issued tool calls to
// their handlers. Each sub-package exports a constructor function that
// returns a slice of [Tool] values ready for registration.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/voxhaus/voxhaus/pkg/backend"
)

// Tool represents a built-in tool ready for registration.
type Tool struct {
	// Definition is the tool's model-facing schema including its name,
	// description, and JSON Schema parameter specification.
	Definition backend.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// result string on success, or a descriptive error. Implementations
	// must be safe for concurrent use and must respect context
	// cancellation.
	Handler func(ctx context.Context, args string) (string, error)
}

// Source is a named group of tools, typically one per integration
// (calendar, smart home, music, ...).
type Source interface {
	// Name identifies the source in logs and the startup summary.
	Name() string

	// Tools returns the tools this source contributes.
	Tools() []Tool
}

// Initializer is implemented by sources that need a connectivity check or
// other setup before their tools can be offered to the model. A failed Init
// excludes the source without aborting startup.
type Initializer interface {
	Init(ctx context.Context) error
}

// Closer is implemented by sources that hold resources needing release on
// shutdown.
type Closer interface {
	Close() error
}

// Registry holds all registered tools and dispatches calls by name.
// Registration happens once during startup; Dispatch may then be called
// concurrently.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a single tool. Registering a second tool under an already
// taken name is an error.
func (r *Registry) Register(t Tool) error {
	name := t.Definition.Name
	if name == "" {
		return fmt.Errorf("tools: register: tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: register %q: tool has no handler", name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tools: register %q: name already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// RegisterAll registers every tool in ts, stopping at the first error.
func (r *Registry) RegisterAll(ts []Tool) error {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Definitions returns the model-facing schemas of all registered tools in
// registration order.
func (r *Registry) Definitions() []backend.ToolDefinition {
	defs := make([]backend.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Names returns the registered tool names, sorted for stable display.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Dispatch executes the named tool with the given JSON-encoded arguments and
// returns a response map suitable for sending back to the model.
//
// Dispatch never returns an error to the caller: unknown tools, handler
// errors, and handler panics all become an {"error": ...} response so that
// the conversation can continue with the failure visible to the model.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) (resp map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool handler panicked", "tool", name, "panic", rec)
			resp = map[string]any{"error": fmt.Sprintf("tool %q panicked: %v", name, rec)}
		}
	}()

	t, ok := r.tools[name]
	if !ok {
		slog.Warn("Tool call for unknown tool", "tool", name)
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}
	}

	result, err := t.Handler(ctx, argsJSON)
	if err != nil {
		slog.Warn("Tool call failed", "tool", name, "error", err)
		return map[string]any{"error": err.Error()}
	}

	// Handlers that already produce a JSON object pass it through unchanged;
	// plain-text results are wrapped.
	var parsed map[string]any
	if err := json.Unmarshal([]byte(result), &parsed); err == nil && parsed != nil {
		return parsed
	}
	return map[string]any{"output": result}
}
