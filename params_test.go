package llmstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequestParams(t *testing.T) {
	tests := []struct {
		name   string
		params *RequestParams
		field  string // empty: valid
	}{
		{"nil params", nil, ""},
		{"empty params", &RequestParams{}, ""},
		{"temperature 0", &RequestParams{Temperature: float64Ptr(0)}, ""},
		{"temperature 2", &RequestParams{Temperature: float64Ptr(2)}, ""},
		{"temperature negative", &RequestParams{Temperature: float64Ptr(-0.1)}, "temperature"},
		{"temperature above 2", &RequestParams{Temperature: float64Ptr(2.1)}, "temperature"},
		{"top_p 1", &RequestParams{TopP: float64Ptr(1)}, ""},
		{"top_p above 1", &RequestParams{TopP: float64Ptr(1.1)}, "top_p"},
		{"top_k 0", &RequestParams{TopK: intPtr(0)}, ""},
		{"top_k negative", &RequestParams{TopK: intPtr(-1)}, "top_k"},
		{"max_tokens 1", &RequestParams{MaxTokens: intPtr(1)}, ""},
		{"max_tokens 0", &RequestParams{MaxTokens: intPtr(0)}, "max_tokens"},
		{"thinking level", &RequestParams{ThinkingLevel: stringPtr("medium")}, ""},
		{"unknown thinking level", &RequestParams{ThinkingLevel: stringPtr("extreme")}, "thinking_level"},
		{"auto tool choice", &RequestParams{ToolChoice: &ToolChoice{Mode: ToolChoiceModeAuto}}, ""},
		{"specific tool choice without name", &RequestParams{ToolChoice: &ToolChoice{Mode: ToolChoiceModeSpecific}}, "tool_choice"},
		{"unknown tool choice mode", &RequestParams{ToolChoice: &ToolChoice{Mode: "sometimes"}}, "tool_choice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequestParams(tt.params)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, IsInvalidRequest(err))
			assert.NotEmpty(t, verr.Error())
		})
	}
}

func TestRequestParams_Getters(t *testing.T) {
	var none *RequestParams
	assert.Equal(t, 1000, none.GetMaxTokens(1000))
	assert.Equal(t, 0.7, none.GetTemperature(0.7))
	assert.Empty(t, none.GetSystem())
	assert.False(t, none.IsThinkingEnabled())
	assert.False(t, none.IsWebSearchEnabled())
	assert.Zero(t, none.GetThinkingBudgetTokens())

	rp := &RequestParams{
		MaxTokens:   intPtr(500),
		Temperature: float64Ptr(0.2),
		System:      stringPtr("be brief"),
		WebSearch:   boolPtr(true),
	}
	assert.Equal(t, 500, rp.GetMaxTokens(1000))
	assert.Equal(t, 0.2, rp.GetTemperature(0.7))
	assert.Equal(t, "be brief", rp.GetSystem())
	assert.True(t, rp.IsWebSearchEnabled())
}

func TestRequestParams_ThinkingBudget(t *testing.T) {
	tests := []struct {
		name    string
		params  *RequestParams
		enabled bool
		budget  int
	}{
		{"off", &RequestParams{ThinkingEnabled: boolPtr(false)}, false, 0},
		{"on without level", &RequestParams{ThinkingEnabled: boolPtr(true)}, true, 0},
		{"low", &RequestParams{ThinkingEnabled: boolPtr(true), ThinkingLevel: stringPtr("low")}, true, 2000},
		{"medium", &RequestParams{ThinkingEnabled: boolPtr(true), ThinkingLevel: stringPtr("medium")}, true, 5000},
		// A level alone implies thinking
		{"level only", &RequestParams{ThinkingLevel: stringPtr("high")}, true, 12000},
		// An explicit false wins over a level
		{"disabled with level", &RequestParams{ThinkingEnabled: boolPtr(false), ThinkingLevel: stringPtr("high")}, false, 0},
		{"unknown level", &RequestParams{ThinkingEnabled: boolPtr(true), ThinkingLevel: stringPtr("unknown")}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.enabled, tt.params.IsThinkingEnabled())
			assert.Equal(t, tt.budget, tt.params.GetThinkingBudgetTokens())
		})
	}
}

func TestGetRequestParamStruct(t *testing.T) {
	rp, err := GetRequestParamStruct(map[string]interface{}{
		"max_tokens":  256,
		"temperature": 0.2,
		"stop":        []string{"END"},
		"web_search":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 256, rp.GetMaxTokens(0))
	assert.Equal(t, 0.2, rp.GetTemperature(1))
	assert.Equal(t, []string{"END"}, rp.Stop)
	assert.True(t, rp.IsWebSearchEnabled())

	empty, err := GetRequestParamStruct(nil)
	require.NoError(t, err)
	assert.Equal(t, &RequestParams{}, empty)

	_, err = GetRequestParamStruct(map[string]interface{}{"max_tokens": "many"})
	assert.Error(t, err)
}
