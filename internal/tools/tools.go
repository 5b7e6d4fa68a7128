// Package tools defines the closed set of capabilities the reasoning engine
// may invoke, registered into a capability table with a typed input schema
// per tool.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robin-osint/robin/pkg/observability"
)

// Capability names exposed to the reasoning engine.
const (
	NameSearch   = "darkweb_search"
	NameScrape   = "darkweb_scrape"
	NameSave     = "save_report"
	NameDelegate = "delegate_analysis"
)

// Handler executes one tool invocation.
type Handler func(ctx context.Context, args Args) (Output, error)

// Tool is one entry in the capability table.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Schema      Schema  `json:"input_schema"`
	Handler     Handler `json:"-"`
}

// Schema is a JSON Schema fragment for tool input validation.
type Schema map[string]Field

// Field describes a single schema property.
type Field struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Items       string `json:"items,omitempty"`
}

// JSONSchema renders the schema as a standard JSON Schema object suitable
// for provider tool declarations.
func (s Schema) JSONSchema() json.RawMessage {
	properties := make(map[string]map[string]any, len(s))
	var required []string
	for name, f := range s {
		prop := map[string]any{"type": f.Type}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if f.Items != "" {
			prop["items"] = map[string]any{"type": f.Items}
		}
		properties[name] = prop
		if f.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b
}

// Args provides loosely typed access to tool arguments decoded from JSON.
type Args map[string]any

// String returns a string argument, or "" when absent.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer argument, accepting JSON numbers.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// Slice returns a list argument.
func (a Args) Slice(key string) []any {
	if v, ok := a[key].([]any); ok {
		return v
	}
	return nil
}

// StringSlice returns a list argument coerced to strings, dropping
// everything else.
func (a Args) StringSlice(key string) []string {
	var out []string
	for _, v := range a.Slice(key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Output is what a tool hands back: Text is the model-visible rendering,
// Data an optional structured payload for observers (event correlation).
type Output struct {
	Text string
	Data any
}

// Registry is the closed, ordered capability table passed to the reasoning
// engine boundary.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty capability table.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is a programming error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tool must have a name and a handler")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.order = append(r.order, t.Name)
	r.tools[t.Name] = t
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Call dispatches one invocation to the named tool and records metrics.
func (r *Registry) Call(ctx context.Context, name string, args Args) (Output, error) {
	t, ok := r.tools[name]
	if !ok {
		return Output{}, fmt.Errorf("unknown tool: %s", name)
	}

	start := time.Now()
	out, err := t.Handler(ctx, args)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordToolCall(name, status, time.Since(start))
	return out, err
}
