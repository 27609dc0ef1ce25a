package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	llmstream "github.com/haowjy/meridian-stream-go"
)

const (
	defaultMaxTokens      = 4096
	defaultThinkingBudget = 5000
	// Anthropic's smallest accepted thinking budget
	minThinkingBudget = 1024
)

// buildMessageParams constructs Anthropic API parameters from a conversation.
// Streaming and whole-message calls share it.
func buildMessageParams(conv *llmstream.Conversation) (anthropic.MessageNewParams, error) {
	messages, err := convertToAnthropicMessages(conv.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := conv.Params
	if params == nil {
		params = &llmstream.RequestParams{}
	}

	maxTokens := params.GetMaxTokens(defaultMaxTokens)
	apiParams := anthropic.MessageNewParams{
		Model:    anthropic.Model(conv.Model),
		Messages: messages,
	}

	// Extended thinking rejects a modified temperature
	if params.Temperature != nil && !params.IsThinkingEnabled() {
		// Anthropic accepts 0-1; the shared range is 0-2
		temp := min(*params.Temperature, 1.0)
		apiParams.Temperature = anthropic.Float(temp)
	}
	if params.TopP != nil {
		apiParams.TopP = anthropic.Float(*params.TopP)
	}
	if params.TopK != nil {
		apiParams.TopK = anthropic.Int(int64(*params.TopK))
	}
	if len(params.Stop) > 0 {
		apiParams.StopSequences = params.Stop
	}
	if system := params.GetSystem(); system != "" {
		apiParams.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if params.IsThinkingEnabled() {
		budget := thinkingBudget(conv.Model, params)
		// max_tokens must exceed the thinking budget
		if maxTokens <= budget {
			maxTokens = budget + defaultMaxTokens
		}
		apiParams.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	}
	apiParams.MaxTokens = int64(maxTokens)

	apiParams.Tools = convertTools(conv.Tools, params.IsWebSearchEnabled())
	if len(apiParams.Tools) > 0 {
		choice, err := convertToolChoice(params.ToolChoice)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		if choice != nil {
			apiParams.ToolChoice = *choice
		}
	}

	return apiParams, nil
}

// thinkingBudget resolves the thinking level to a token budget, preferring
// the model's capability table and falling back to the shared defaults.
func thinkingBudget(model string, params *llmstream.RequestParams) int {
	level := "medium"
	if params.ThinkingLevel != nil {
		level = *params.ThinkingLevel
	}
	budget, err := llmstream.GetCapabilityRegistry().ConvertEffortToBudget(llmstream.ProviderAnthropic.String(), model, level)
	if err != nil || budget <= 0 {
		budget = params.GetThinkingBudgetTokens()
	}
	if budget <= 0 {
		budget = defaultThinkingBudget
	}
	return max(budget, minThinkingBudget)
}
