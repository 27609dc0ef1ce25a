package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers/anthropic"
	"github.com/haowjy/meridian-stream-go/providers/gemini"
	"github.com/haowjy/meridian-stream-go/providers/lorem"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

func TestNewTransformer(t *testing.T) {
	tests := []struct {
		id   llmstream.ProviderID
		want any
	}{
		{llmstream.ProviderGrok, &openai.ChatTransformer{}},
		{llmstream.ProviderLorem, &openai.ChatTransformer{}},
		{llmstream.ProviderOpenAIResponse, &openai.ResponsesTransformer{}},
		{llmstream.ProviderAnthropic, &anthropic.Transformer{}},
		{llmstream.ProviderGemini, &gemini.Transformer{}},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			tr, err := NewTransformer(tt.id)
			require.NoError(t, err)
			assert.IsType(t, tt.want, tr)
			if tt.id != llmstream.ProviderOpenAIResponse {
				assert.Equal(t, tt.id, tr.Provider())
			}
		})
	}
}

func TestNewTransformer_OpenAICompat(t *testing.T) {
	tr, err := NewTransformer(llmstream.ProviderOpenAI, WithModel("o3-pro"))
	require.NoError(t, err)
	compat, ok := tr.(*openai.CompatTransformer)
	require.True(t, ok)
	assert.Equal(t, openai.CompatDirect, compat.Mode())

	tr, err = NewTransformer(llmstream.ProviderOpenAI, WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, openai.CompatDelegating, tr.(*openai.CompatTransformer).Mode())
}

func TestNewTransformer_Unknown(t *testing.T) {
	_, err := NewTransformer("carrier-pigeon")
	assert.ErrorIs(t, err, llmstream.ErrUnknownProvider)

	_, err = Factory("carrier-pigeon")
	assert.ErrorIs(t, err, llmstream.ErrUnknownProvider)
}

func TestFactory_FreshTransformers(t *testing.T) {
	factory, err := Factory(llmstream.ProviderAnthropic)
	require.NoError(t, err)
	a, b := factory(), factory()
	assert.NotSame(t, a, b)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(context.Background(), llmstream.ProviderLorem, "")
	require.NoError(t, err)
	assert.IsType(t, &lorem.Model{}, m)

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	m, err = NewModel(context.Background(), llmstream.ProviderAnthropic, "")
	require.NoError(t, err)
	assert.Equal(t, llmstream.ProviderAnthropic, m.Provider())

	t.Setenv("XAI_API_KEY", "")
	_, err = NewModel(context.Background(), llmstream.ProviderGrok, "")
	assert.ErrorIs(t, err, llmstream.ErrInvalidAPIKey)

	m, err = NewModel(context.Background(), llmstream.ProviderOpenAI, "sk-test", WithModel("o3-pro"))
	require.NoError(t, err)
	assert.Equal(t, llmstream.ProviderOpenAIResponse, m.Provider())

	_, err = NewModel(context.Background(), "carrier-pigeon", "key")
	assert.ErrorIs(t, err, llmstream.ErrUnknownProvider)
}
