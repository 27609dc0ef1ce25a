package llmstream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compileInputSchema compiles a tool's input schema for argument validation.
// A nil schema compiles to nil (nothing to validate against).
func compileInputSchema(def *ToolDefinition) (*jsonschema.Schema, error) {
	if len(def.InputSchema) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %q: %w", def.Name, err)
	}

	url := "tool://" + def.Name + "/input.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", def.Name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", def.Name, err)
	}
	return compiled, nil
}

// ValidateArguments checks parsed arguments against the tool's input schema.
func (t *CatalogTool) ValidateArguments(args map[string]any) error {
	if t.schema == nil {
		return nil
	}
	if err := t.schema.Validate(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	return nil
}
