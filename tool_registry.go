package llmstream

import (
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry manages runtime registration of tools and their executors.
// It is mutable; pipelines never read it directly but take an immutable
// ToolCatalog from Snapshot.
type ToolRegistry struct {
	tools map[string]registeredTool
	mu    sync.RWMutex
}

type registeredTool struct {
	def      ToolDefinition
	executor ToolExecutor
}

var (
	globalToolRegistry     *ToolRegistry
	globalToolRegistryOnce sync.Once
)

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// GetToolRegistry returns the global tool registry (singleton)
func GetToolRegistry() *ToolRegistry {
	globalToolRegistryOnce.Do(func() {
		globalToolRegistry = NewToolRegistry()
	})
	return globalToolRegistry
}

// Register adds a tool definition to the registry.
// A nil executor means calls fall back to the orchestrator's default executor.
func (r *ToolRegistry) Register(def ToolDefinition, executor ToolExecutor) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}

	r.tools[def.Name] = registeredTool{def: def, executor: executor}
	return nil
}

// Unregister removes a tool definition from the registry
func (r *ToolRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s is not registered", name)
	}

	delete(r.tools, name)
	return nil
}

// Get retrieves a tool definition by name
func (r *ToolRegistry) Get(name string) (ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tools[name]
	if !exists {
		return ToolDefinition{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	return t.def, nil
}

// IsRegistered checks if a tool is registered
func (r *ToolRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// List returns all registered tool names, sorted
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot compiles the current registrations into an immutable catalog.
func (r *ToolRegistry) Snapshot() (*ToolCatalog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]CatalogTool, 0, len(r.tools))
	for _, t := range r.tools {
		def := t.def
		tools = append(tools, CatalogTool{Definition: &def, Executor: t.executor})
	}
	return NewToolCatalog(tools...)
}

// RegisterTool is a convenience function that registers a tool with the global registry
func RegisterTool(def ToolDefinition, executor ToolExecutor) error {
	return GetToolRegistry().Register(def, executor)
}

// CatalogTool is one resolved entry of a ToolCatalog.
type CatalogTool struct {
	Definition *ToolDefinition
	Executor   ToolExecutor // nil: use the orchestrator's default executor

	schema *jsonschema.Schema
}

// ToolCatalog is the read-only name → tool mapping shared by concurrent
// pipelines. It is never mutated after construction, so lookups take no lock.
type ToolCatalog struct {
	byName map[string]*CatalogTool
	defs   []*ToolDefinition
}

// NewToolCatalog builds a catalog and compiles each tool's input schema.
func NewToolCatalog(tools ...CatalogTool) (*ToolCatalog, error) {
	c := &ToolCatalog{byName: make(map[string]*CatalogTool, len(tools))}
	for i := range tools {
		t := tools[i]
		if t.Definition == nil {
			return nil, fmt.Errorf("catalog entry %d has no definition", i)
		}
		if _, dup := c.byName[t.Definition.Name]; dup {
			return nil, fmt.Errorf("tool %s is defined twice", t.Definition.Name)
		}
		schema, err := compileInputSchema(t.Definition)
		if err != nil {
			return nil, err
		}
		t.schema = schema
		c.byName[t.Definition.Name] = &t
		c.defs = append(c.defs, t.Definition)
	}
	sort.Slice(c.defs, func(i, j int) bool { return c.defs[i].Name < c.defs[j].Name })
	return c, nil
}

// Lookup resolves a tool by name.
func (c *ToolCatalog) Lookup(name string) (*CatalogTool, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.byName[name]
	return t, ok
}

// Definitions returns the catalog's tool definitions sorted by name,
// for inclusion in model requests.
func (c *ToolCatalog) Definitions() []*ToolDefinition {
	if c == nil {
		return nil
	}
	return c.defs
}

// Len returns the number of tools in the catalog.
func (c *ToolCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}
