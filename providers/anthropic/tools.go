package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// convertTools converts tool definitions to Anthropic custom tools, adding
// the server-side web_search tool when requested.
func convertTools(tools []*llmstream.ToolDefinition, webSearch bool) []anthropic.ToolUnionParam {
	if len(tools) == 0 && !webSearch {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools)+1)
	for _, tool := range tools {
		result = append(result, convertCustomTool(tool))
	}
	if webSearch {
		// https://docs.anthropic.com/en/docs/build-with-claude/web-search
		result = append(result, anthropic.ToolUnionParam{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{},
		})
	}
	return result
}

// convertCustomTool converts a JSON-schema tool to Anthropic's input_schema form.
// Anthropic wants the properties object and required list as dedicated
// fields; every other schema keyword travels in ExtraFields.
func convertCustomTool(tool *llmstream.ToolDefinition) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{
		Properties:  tool.InputSchema["properties"],
		ExtraFields: make(map[string]any),
	}

	switch required := tool.InputSchema["required"].(type) {
	case []string:
		schema.Required = required
	case []interface{}:
		for _, v := range required {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	for key, value := range tool.InputSchema {
		if key != "type" && key != "properties" && key != "required" {
			schema.ExtraFields[key] = value
		}
	}

	toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
	if tool.Description != "" && toolParam.OfTool != nil {
		toolParam.OfTool.Description = anthropic.String(tool.Description)
	}
	return toolParam
}

// convertToolChoice converts ToolChoice to Anthropic format.
// Returns nil if no tool choice specified (lets the model decide).
func convertToolChoice(choice *llmstream.ToolChoice) (*anthropic.ToolChoiceUnionParam, error) {
	if choice == nil {
		return nil, nil
	}
	if err := choice.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool choice: %w", err)
	}

	switch choice.Mode {
	case llmstream.ToolChoiceModeAuto:
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, nil

	case llmstream.ToolChoiceModeRequired:
		// Anthropic calls this "any"
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil

	case llmstream.ToolChoiceModeNone:
		none := anthropic.NewToolChoiceNoneParam()
		return &anthropic.ToolChoiceUnionParam{OfNone: &none}, nil

	case llmstream.ToolChoiceModeSpecific:
		union := anthropic.ToolChoiceParamOfTool(*choice.ToolName)
		return &union, nil

	default:
		return nil, fmt.Errorf("unsupported tool choice mode: %s", choice.Mode)
	}
}
