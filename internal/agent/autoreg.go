package agent

import (
	"log/slog"
	"sort"
	"sync"
)

// ToolFactory builds a tool from shared dependencies. Factories declare the
// dependency keys they require; AutoRegisterAll skips a factory when any
// required key is absent or nil, so optional integrations degrade silently.
type ToolFactory struct {
	// Requires lists the dependency keys the factory needs.
	Requires []string

	// Build constructs the tool from the dependency map.
	Build func(deps map[string]any) Tool
}

var (
	factoryMu sync.Mutex
	factories = make(map[string]ToolFactory)
)

// RegisterFactory adds a tool factory to the global table. Tool packages
// call this from init; the first registration for a name wins.
func RegisterFactory(name string, f ToolFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factories[name]; exists {
		return
	}
	factories[name] = f
}

// AutoRegisterAll walks the factory table and registers every tool whose
// dependencies are satisfied. Tools already present in the registry are
// left alone. Returns the names of newly registered tools.
func AutoRegisterAll(reg *Registry, deps map[string]any, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	factoryMu.Lock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	table := make(map[string]ToolFactory, len(factories))
	for name, f := range factories {
		table[name] = f
	}
	factoryMu.Unlock()

	var registered []string
	for _, name := range names {
		f := table[name]
		if reg.Has(name) {
			continue
		}
		if missing, ok := depsSatisfied(f.Requires, deps); !ok {
			logger.Debug("skipping tool, dependency unavailable",
				"tool", name, "missing", missing)
			continue
		}
		tool := f.Build(deps)
		if tool == nil {
			continue
		}
		if err := reg.Register(tool); err != nil {
			logger.Warn("tool auto-registration failed", "tool", name, "error", err)
			continue
		}
		registered = append(registered, name)
	}
	return registered
}

func depsSatisfied(requires []string, deps map[string]any) (string, bool) {
	for _, key := range requires {
		v, ok := deps[key]
		if !ok || v == nil {
			return key, false
		}
	}
	return "", true
}
