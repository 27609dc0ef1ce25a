package llmstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func warningCodes(ws []ValidationWarning) []WarningCode {
	var out []WarningCode
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestConversationWarnings(t *testing.T) {
	registry := NewCapabilityRegistry()
	registry.RegisterProviderCapabilities("lorem", &ProviderCapabilities{
		Provider: "lorem",
		Models: map[string]ModelCapability{
			"lorem-plain": {Features: ModelFeatures{Streaming: true}},
			"lorem-full":  {Features: ModelFeatures{Tools: true, Thinking: true, WebSearch: true}},
		},
	})
	echo := &ToolDefinition{Name: "echo"}

	tests := []struct {
		name string
		conv *Conversation
		want []WarningCode
	}{
		{
			name: "unknown model",
			conv: &Conversation{Model: "lorem-unknown"},
			want: []WarningCode{WarningCodeModelUnknown},
		},
		{
			name: "everything unsupported",
			conv: &Conversation{
				Model:  "lorem-plain",
				Tools:  []*ToolDefinition{echo},
				Params: &RequestParams{ThinkingEnabled: boolPtr(true), WebSearch: boolPtr(true)},
			},
			want: []WarningCode{
				WarningCodeModelDoesNotSupportTools,
				WarningCodeThinkingUnsupported,
				WarningCodeWebSearchUnsupported,
			},
		},
		{
			name: "everything supported",
			conv: &Conversation{
				Model:  "lorem-full",
				Tools:  []*ToolDefinition{echo},
				Params: &RequestParams{ThinkingEnabled: boolPtr(true), WebSearch: boolPtr(true)},
			},
		},
		{
			name: "nothing requested",
			conv: &Conversation{Model: "lorem-plain"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConversationWarnings(registry, ProviderLorem, tt.conv)
			assert.Equal(t, tt.want, warningCodes(got))
		})
	}
}

func TestConversationWarnings_NilInputs(t *testing.T) {
	assert.Nil(t, ConversationWarnings(nil, ProviderLorem, &Conversation{}))
	assert.Nil(t, ConversationWarnings(NewCapabilityRegistry(), ProviderLorem, nil))
}

func TestConversationWarnings_Severity(t *testing.T) {
	ws := ConversationWarnings(NewCapabilityRegistry(), ProviderLorem, &Conversation{Model: "x"})
	if assert.Len(t, ws, 1) {
		assert.Equal(t, SeverityInfo, ws[0].Severity)
		assert.Equal(t, "model", ws[0].Field)
	}
}
