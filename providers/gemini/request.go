package gemini

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"

	llmstream "github.com/haowjy/meridian-stream-go"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// buildRequest converts a conversation into genai contents and config.
func buildRequest(conv *llmstream.Conversation) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, err := convertMessages(conv.Messages)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := conv.Params
	if params == nil {
		params = &llmstream.RequestParams{}
	}

	cfg := &genai.GenerateContentConfig{}
	if system := params.GetSystem(); system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if params.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*params.Temperature))
	}
	if params.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*params.TopP))
	}
	if params.TopK != nil {
		cfg.TopK = genai.Ptr(float32(*params.TopK))
	}
	if params.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		cfg.StopSequences = params.Stop
	}

	if params.IsThinkingEnabled() {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(thinkingBudget(conv.Model, params))),
		}
	}

	cfg.Tools = convertTools(conv.Tools, params.IsWebSearchEnabled())
	if len(conv.Tools) > 0 && params.ToolChoice != nil {
		toolCfg, err := convertToolChoice(params.ToolChoice)
		if err != nil {
			return nil, nil, err
		}
		cfg.ToolConfig = toolCfg
	}

	return contents, cfg, nil
}

// convertMessages maps blocks to parts. Gemini names the function on every
// response, so tool_result blocks look the name up from the tool_use they
// answer. Consecutive same-role messages are merged into one content.
func convertMessages(messages []llmstream.Message) ([]*genai.Content, error) {
	messages = llmstream.StripForeignThinking(messages, llmstream.ProviderGemini)

	names := make(map[string]string)
	var contents []*genai.Content

	for _, msg := range messages {
		role := roleUser
		if msg.Role == llmstream.RoleAssistant {
			role = roleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Blocks {
			part, err := convertBlock(block, names)
			if err != nil {
				return nil, err
			}
			if part != nil {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			continue
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

func convertBlock(block *llmstream.Block, names map[string]string) (*genai.Part, error) {
	switch block.BlockType {
	case llmstream.BlockTypeText:
		if block.Text() == "" {
			return nil, nil
		}
		return &genai.Part{Text: block.Text()}, nil

	case llmstream.BlockTypeThinking:
		// Only Gemini's own signed thoughts can be replayed
		sig, _ := block.Content["signature"].(string)
		if sig == "" {
			return nil, nil
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			return nil, nil
		}
		return &genai.Part{Text: block.Text(), Thought: true, ThoughtSignature: decoded}, nil

	case llmstream.BlockTypeToolUse:
		id, _ := block.GetToolUseID()
		name, ok := block.GetToolName()
		if !ok || name == "" {
			return nil, fmt.Errorf("tool_use block missing tool_name")
		}
		input, _ := block.GetToolInput()
		names[id] = name
		part := &genai.Part{FunctionCall: &genai.FunctionCall{ID: id, Name: name, Args: input}}
		if sig, _ := block.Content["signature"].(string); sig != "" {
			if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil {
				part.ThoughtSignature = decoded
			}
		}
		return part, nil

	case llmstream.BlockTypeToolResult:
		id, ok := block.GetToolUseID()
		if !ok || id == "" {
			return nil, fmt.Errorf("tool_result block missing tool_use_id")
		}
		name, ok := names[id]
		if !ok {
			return nil, fmt.Errorf("tool_result %s answers no earlier tool_use", id)
		}
		key := "output"
		if block.IsToolError() {
			key = "error"
		}
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       id,
			Name:     name,
			Response: map[string]any{key: block.Text()},
		}}, nil

	default:
		return nil, nil
	}
}

func convertTools(tools []*llmstream.ToolDefinition, webSearch bool) []*genai.Tool {
	var result []*genai.Tool
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, tool := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 tool.Name,
				Description:          tool.Description,
				ParametersJsonSchema: tool.InputSchema,
			})
		}
		result = append(result, &genai.Tool{FunctionDeclarations: decls})
	}
	if webSearch {
		result = append(result, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	return result
}

func convertToolChoice(choice *llmstream.ToolChoice) (*genai.ToolConfig, error) {
	if err := choice.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool choice: %w", err)
	}

	fc := &genai.FunctionCallingConfig{}
	switch choice.Mode {
	case llmstream.ToolChoiceModeAuto:
		fc.Mode = genai.FunctionCallingConfigModeAuto
	case llmstream.ToolChoiceModeRequired:
		fc.Mode = genai.FunctionCallingConfigModeAny
	case llmstream.ToolChoiceModeNone:
		fc.Mode = genai.FunctionCallingConfigModeNone
	case llmstream.ToolChoiceModeSpecific:
		fc.Mode = genai.FunctionCallingConfigModeAny
		fc.AllowedFunctionNames = []string{*choice.ToolName}
	default:
		return nil, fmt.Errorf("unsupported tool choice mode: %s", choice.Mode)
	}
	return &genai.ToolConfig{FunctionCallingConfig: fc}, nil
}

// thinkingBudget resolves the thinking level through the capability table.
func thinkingBudget(model string, params *llmstream.RequestParams) int {
	level := "medium"
	if params.ThinkingLevel != nil {
		level = *params.ThinkingLevel
	}
	budget, err := llmstream.GetCapabilityRegistry().ConvertEffortToBudget(llmstream.ProviderGemini.String(), model, level)
	if err != nil || budget <= 0 {
		budget = params.GetThinkingBudgetTokens()
	}
	return budget
}
