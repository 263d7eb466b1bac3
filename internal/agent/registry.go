package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/courier-ai/courier/internal/observability"
)

// Registry holds the tools available to the agent. Registration order is
// preserved so that glob filtering and provider definitions are stable.
//
// Execute never returns a Go error: unknown tools, invalid parameters,
// execution failures, and panics all come back as error strings the model
// can read and react to.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. Registering a name twice replaces the previous
// tool but keeps its original position.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	delete(r.schemas, name)
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	delete(r.schemas, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Definitions returns provider-facing descriptors for all tools, in
// registration order.
func (r *Registry) Definitions() []ToolDefinition {
	return r.DefinitionsFor(nil)
}

// DefinitionsFor returns descriptors for the tools matching the given glob
// patterns (nil, empty, or ["*"] selects all), in registration order.
func (r *Registry) DefinitionsFor(patterns []string) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := MatchPatterns(r.order, patterns)
	defs := make([]ToolDefinition, 0, len(selected))
	for _, name := range selected {
		t := r.tools[name]
		defs = append(defs, ToolDefinition{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// Execute validates params against the tool's schema and runs it. The
// result is always a string; failures are formatted for the model.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (result string) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		observability.ToolExecutions.WithLabelValues(name, "not_found").Inc()
		return fmt.Sprintf("Error: Tool '%s' not found", name)
	}

	if err := r.validate(name, tool, params); err != nil {
		observability.ToolExecutions.WithLabelValues(name, "invalid_params").Inc()
		return fmt.Sprintf("Error: Invalid parameters for tool '%s': %v", name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			observability.ToolExecutions.WithLabelValues(name, "panic").Inc()
			result = fmt.Sprintf("Error executing %s: panic: %v", name, rec)
		}
	}()

	out, err := tool.Execute(ctx, params)
	if err != nil {
		observability.ToolExecutions.WithLabelValues(name, "error").Inc()
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}
	observability.ToolExecutions.WithLabelValues(name, "ok").Inc()
	return out
}

// EachChatScoped calls fn for every registered tool that is chat scoped,
// in registration order.
func (r *Registry) EachChatScoped(fn func(ChatScoped)) {
	r.mu.RLock()
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	r.mu.RUnlock()

	for _, t := range tools {
		if cs, ok := t.(ChatScoped); ok {
			fn(cs)
		}
	}
}

// EachRequestScoped calls fn for every registered tool that is request
// scoped, in registration order.
func (r *Registry) EachRequestScoped(fn func(RequestScoped)) {
	r.mu.RLock()
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	r.mu.RUnlock()

	for _, t := range tools {
		if rs, ok := t.(RequestScoped); ok {
			fn(rs)
		}
	}
}

func (r *Registry) validate(name string, tool Tool, params map[string]any) error {
	schema, err := r.compiledSchema(name, tool)
	if err != nil {
		// An uncompilable schema is a tool bug; skip validation rather
		// than block every call.
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	// The validator walks plain interface values, the same shape
	// json.Unmarshal produces.
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func (r *Registry) compiledSchema(name string, tool Tool) (*jsonschema.Schema, error) {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if ok {
		return schema, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("schema.json", strings.NewReader(string(tool.Schema()))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.schemas[name] = schema
	r.mu.Unlock()
	return schema, nil
}
