package llmstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaReflector inlines all definitions; several vendors reject $ref in tool schemas.
var schemaReflector = &jsonschema.Reflector{
	DoNotReference: true,
}

// NewCustomTool creates a tool definition from a hand-written JSON schema.
// This follows the universal function calling standard used by OpenAI, Anthropic, Gemini, and OpenRouter.
//
// Example parameters:
//
//	map[string]interface{}{
//	  "type": "object",
//	  "properties": map[string]interface{}{
//	    "location": map[string]interface{}{
//	      "type": "string",
//	      "description": "The city and state, e.g. San Francisco, CA",
//	    },
//	  },
//	  "required": []string{"location"},
//	}
func NewCustomTool(name string, description string, parameters map[string]interface{}) (*ToolDefinition, error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}

	if description == "" {
		return nil, errors.New("tool description is required")
	}

	if parameters == nil {
		return nil, errors.New("parameters are required")
	}

	def := &ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: parameters,
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create custom tool: %w", err)
	}

	return def, nil
}

// SchemaFor reflects a JSON schema for the struct type In, in the map form
// ToolDefinition.InputSchema expects.
//
//	type WeatherInput struct {
//	    City string `json:"city" jsonschema:"required,description=City name"`
//	}
func SchemaFor[In any]() (map[string]interface{}, error) {
	var zero In
	reflected := schemaReflector.Reflect(&zero)

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	// Draft 2020-12 $schema/$id add nothing for vendors
	delete(schema, "$schema")
	delete(schema, "$id")

	return schema, nil
}

// NewFuncTool creates a local tool whose input schema is reflected from In.
// The returned executor decodes the arguments into In before calling fn.
func NewFuncTool[In any](name, description string, fn func(ctx context.Context, in In) (*ToolResult, error)) (*ToolDefinition, ToolExecutor, error) {
	schema, err := SchemaFor[In]()
	if err != nil {
		return nil, nil, fmt.Errorf("tool %s: %w", name, err)
	}

	def, err := NewCustomTool(name, description, schema)
	if err != nil {
		return nil, nil, err
	}

	exec := ToolExecutorFunc(func(ctx context.Context, _ *ToolDefinition, args map[string]any) (*ToolResult, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal arguments: %w", err)
		}
		var in In
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("failed to decode arguments: %w", err)
		}
		return fn(ctx, in)
	})

	return def, exec, nil
}
