package llmstream

import (
	"context"
	"errors"
	"fmt"
)

// ToolDefinition describes a tool the model can call and the orchestrator
// can invoke (an MCP tool, or a local function exposed the same way).
//
// InputSchema is the JSON Schema of the arguments object, in the universal
// function calling format that converts to every vendor:
//   - OpenAI: function.parameters
//   - Anthropic: input_schema
//   - Gemini: parameters_json_schema
type ToolDefinition struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema" yaml:"input_schema"`

	// Server names the MCP server that hosts the tool (empty for local tools).
	Server string `json:"server,omitempty" yaml:"server,omitempty"`
}

// Validate checks if the ToolDefinition is properly configured
func (d *ToolDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("tool name is required")
	}

	if d.InputSchema == nil {
		return fmt.Errorf("tool %s: input schema is required", d.Name)
	}

	// Validate that the schema describes an arguments object
	if schemaType, ok := d.InputSchema["type"].(string); !ok || schemaType != "object" {
		return fmt.Errorf("tool %s: input schema must be a JSON schema with type 'object'", d.Name)
	}

	return nil
}

// ToolExecutor is the external tool-execution collaborator.
// CallTool receives the parsed arguments and returns the tool's result; a
// returned error is reported as an error status for that call only.
type ToolExecutor interface {
	CallTool(ctx context.Context, def *ToolDefinition, args map[string]any) (*ToolResult, error)
}

// ToolExecutorFunc adapts a function to the ToolExecutor interface.
type ToolExecutorFunc func(ctx context.Context, def *ToolDefinition, args map[string]any) (*ToolResult, error)

// CallTool calls f(ctx, def, args).
func (f ToolExecutorFunc) CallTool(ctx context.Context, def *ToolDefinition, args map[string]any) (*ToolResult, error) {
	return f(ctx, def, args)
}

// ToolChoiceMode controls tool selection behavior
type ToolChoiceMode string

const (
	ToolChoiceModeAuto     ToolChoiceMode = "auto"     // Model decides whether to use tools
	ToolChoiceModeRequired ToolChoiceMode = "required" // Model must use a tool
	ToolChoiceModeNone     ToolChoiceMode = "none"     // Model cannot use tools
	ToolChoiceModeSpecific ToolChoiceMode = "specific" // Model must use specific tool
)

// ToolChoice specifies tool selection behavior
type ToolChoice struct {
	Mode     ToolChoiceMode `json:"mode"`                // Selection mode
	ToolName *string        `json:"tool_name,omitempty"` // Required when Mode is ToolChoiceModeSpecific
}

// Validate checks if the ToolChoice is properly configured
func (tc *ToolChoice) Validate() error {
	if tc.Mode == ToolChoiceModeSpecific && tc.ToolName == nil {
		return errors.New("tool_name is required when mode is 'specific'")
	}

	if tc.Mode == ToolChoiceModeSpecific && *tc.ToolName == "" {
		return errors.New("tool_name cannot be empty when mode is 'specific'")
	}

	switch tc.Mode {
	case ToolChoiceModeAuto, ToolChoiceModeRequired, ToolChoiceModeNone, ToolChoiceModeSpecific:
		// Valid mode
	default:
		return fmt.Errorf("invalid tool choice mode: %s", tc.Mode)
	}

	return nil
}

// NewToolChoice creates a new ToolChoice with the specified mode
func NewToolChoice(mode ToolChoiceMode) (*ToolChoice, error) {
	tc := &ToolChoice{
		Mode: mode,
	}

	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool choice: %w", err)
	}

	return tc, nil
}

// NewSpecificToolChoice creates a ToolChoice for a specific tool
func NewSpecificToolChoice(toolName string) (*ToolChoice, error) {
	tc := &ToolChoice{
		Mode:     ToolChoiceModeSpecific,
		ToolName: &toolName,
	}

	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid specific tool choice: %w", err)
	}

	return tc, nil
}
