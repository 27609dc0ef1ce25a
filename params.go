package llmstream

import (
	"encoding/json"
	"fmt"
)

// RequestParams represents the LLM request parameters shared across providers.
// All fields are optional pointers to distinguish "not set" from "set to zero value".
// Model collaborators extract what their vendor supports.
type RequestParams struct {
	// ===== Core Parameters (Most Providers) =====

	// MaxTokens sets the maximum number of tokens to generate
	MaxTokens *int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-2.0)
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// TopP (nucleus sampling) - cumulative probability cutoff (0.0-1.0)
	TopP *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`

	// TopK limits sampling to top K tokens
	TopK *int `json:"top_k,omitempty" yaml:"top_k,omitempty"`

	// Stop sequences - generation stops if any of these are generated
	Stop []string `json:"stop,omitempty" yaml:"stop,omitempty"`

	// System prompt
	System *string `json:"system,omitempty" yaml:"system,omitempty"`

	// ===== Reasoning =====

	// ThinkingEnabled enables extended thinking / reasoning output
	ThinkingEnabled *bool `json:"thinking_enabled,omitempty" yaml:"thinking_enabled,omitempty"`

	// ThinkingLevel sets the thinking budget: "low", "medium", "high"
	// Maps to token budgets: low=2000, medium=5000, high=12000
	ThinkingLevel *string `json:"thinking_level,omitempty" yaml:"thinking_level,omitempty"`

	// ===== Server-side Features =====

	// WebSearch asks vendors that support it to ground the answer with web search.
	WebSearch *bool `json:"web_search,omitempty" yaml:"web_search,omitempty"`

	// ToolChoice controls whether/which tools to use
	ToolChoice *ToolChoice `json:"tool_choice,omitempty" yaml:"-"`

	// ParallelToolCalls allows model to use multiple tools simultaneously
	ParallelToolCalls *bool `json:"parallel_tool_calls,omitempty" yaml:"parallel_tool_calls,omitempty"`
}

// ValidateRequestParams validates request parameters
func ValidateRequestParams(params *RequestParams) error {
	if params == nil {
		return nil // nil params is valid
	}

	invalid := func(field string, value interface{}, reason string) error {
		return &ValidationError{Field: field, Value: value, Reason: reason, Err: ErrInvalidRequest}
	}

	if params.Temperature != nil {
		if *params.Temperature < 0.0 || *params.Temperature > 2.0 {
			return invalid("temperature", *params.Temperature, "must be between 0.0 and 2.0")
		}
	}

	if params.TopP != nil {
		if *params.TopP < 0.0 || *params.TopP > 1.0 {
			return invalid("top_p", *params.TopP, "must be between 0.0 and 1.0")
		}
	}

	if params.TopK != nil {
		if *params.TopK < 0 {
			return invalid("top_k", *params.TopK, "must be non-negative")
		}
	}

	if params.MaxTokens != nil {
		if *params.MaxTokens < 1 {
			return invalid("max_tokens", *params.MaxTokens, "must be positive")
		}
	}

	if params.ThinkingLevel != nil {
		if _, ok := defaultEffortBudgets[*params.ThinkingLevel]; !ok {
			return invalid("thinking_level", *params.ThinkingLevel, "must be 'low', 'medium', or 'high'")
		}
	}

	if params.ToolChoice != nil {
		if err := params.ToolChoice.Validate(); err != nil {
			return invalid("tool_choice", params.ToolChoice.Mode, err.Error())
		}
	}

	return nil
}

// GetRequestParamStruct unmarshals a JSON map into a typed RequestParams struct
func GetRequestParamStruct(params map[string]interface{}) (*RequestParams, error) {
	if params == nil {
		return &RequestParams{}, nil
	}

	jsonBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var rp RequestParams
	if err := json.Unmarshal(jsonBytes, &rp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	return &rp, nil
}

// GetMaxTokens returns max_tokens with default fallback
func (rp *RequestParams) GetMaxTokens(defaultValue int) int {
	if rp != nil && rp.MaxTokens != nil {
		return *rp.MaxTokens
	}
	return defaultValue
}

// GetTemperature returns temperature with default fallback
func (rp *RequestParams) GetTemperature(defaultValue float64) float64 {
	if rp != nil && rp.Temperature != nil {
		return *rp.Temperature
	}
	return defaultValue
}

// GetSystem returns the system prompt, or "" when unset
func (rp *RequestParams) GetSystem() string {
	if rp != nil && rp.System != nil {
		return *rp.System
	}
	return ""
}

// IsThinkingEnabled reports whether reasoning output was requested
func (rp *RequestParams) IsThinkingEnabled() bool {
	if rp == nil {
		return false
	}
	if rp.ThinkingEnabled != nil {
		return *rp.ThinkingEnabled
	}
	return rp.ThinkingLevel != nil
}

// IsWebSearchEnabled reports whether server-side web search was requested
func (rp *RequestParams) IsWebSearchEnabled() bool {
	return rp != nil && rp.WebSearch != nil && *rp.WebSearch
}

// GetThinkingBudgetTokens returns the default budget for the requested
// thinking level, or 0 when thinking is off or the level is unknown.
func (rp *RequestParams) GetThinkingBudgetTokens() int {
	if !rp.IsThinkingEnabled() || rp.ThinkingLevel == nil {
		return 0
	}
	return defaultEffortBudgets[*rp.ThinkingLevel]
}
