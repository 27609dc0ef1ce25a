// Package providers resolves transformers and transport models by vendor id.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers/anthropic"
	"github.com/haowjy/meridian-stream-go/providers/gemini"
	"github.com/haowjy/meridian-stream-go/providers/lorem"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

// Option configures resolution.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	model     string
	thinkTags bool
	baseURL   string
	stream    bool
}

// WithLogger sets the logger handed to transformers and models.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithModel names the model, which decides the OpenAI API in use.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithThinkTags makes chat-family transformers split <think> runs out of content.
func WithThinkTags() Option {
	return func(o *options) { o.thinkTags = true }
}

// WithBaseURL overrides the vendor endpoint of models.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithStreaming selects streamed (default) or whole-message vendor calls.
func WithStreaming(stream bool) Option {
	return func(o *options) { o.stream = stream }
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.Default(), stream: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewTransformer returns a fresh transformer for the vendor id. Selection
// is by the id's wire family, never by inspecting chunk shapes.
func NewTransformer(id llmstream.ProviderID, opts ...Option) (llmstream.ChunkTransformer, error) {
	o := newOptions(opts)
	chatOpts := []openai.ChatOption{openai.WithLogger(o.logger)}
	if o.thinkTags {
		chatOpts = append(chatOpts, openai.WithThinkTags())
	}

	switch id.Family() {
	case llmstream.WireFamilyChat:
		if id == llmstream.ProviderOpenAI && o.model != "" {
			return openai.NewCompatTransformer(o.model, chatOpts...), nil
		}
		return openai.NewChatTransformer(id, chatOpts...), nil
	case llmstream.WireFamilyResponses:
		return openai.NewResponsesTransformer(chatOpts...), nil
	case llmstream.WireFamilyAnthropic:
		return anthropic.NewTransformer(anthropic.WithLogger(o.logger)), nil
	case llmstream.WireFamilyGemini:
		return gemini.NewTransformer(gemini.WithLogger(o.logger)), nil
	default:
		return nil, fmt.Errorf("%w: %q", llmstream.ErrUnknownProvider, id)
	}
}

// Factory returns a TransformerFactory for the vendor id, failing early if
// the id is unknown.
func Factory(id llmstream.ProviderID, opts ...Option) (llmstream.TransformerFactory, error) {
	if _, err := NewTransformer(id, opts...); err != nil {
		return nil, err
	}
	return func() llmstream.ChunkTransformer {
		t, _ := NewTransformer(id, opts...)
		return t
	}, nil
}

// apiKeyEnv names the environment variable holding each vendor's API key.
var apiKeyEnv = map[llmstream.ProviderID]string{
	llmstream.ProviderOpenAI:         "OPENAI_API_KEY",
	llmstream.ProviderOpenAIResponse: "OPENAI_API_KEY",
	llmstream.ProviderOpenRouter:     "OPENROUTER_API_KEY",
	llmstream.ProviderGrok:           "XAI_API_KEY",
	llmstream.ProviderPerplexity:     "PERPLEXITY_API_KEY",
	llmstream.ProviderDeepSeek:       "DEEPSEEK_API_KEY",
	llmstream.ProviderZhipu:          "ZHIPU_API_KEY",
	llmstream.ProviderQwen:           "DASHSCOPE_API_KEY",
	llmstream.ProviderHunyuan:        "HUNYUAN_API_KEY",
	llmstream.ProviderAnthropic:      "ANTHROPIC_API_KEY",
	llmstream.ProviderGemini:         "GEMINI_API_KEY",
}

// APIKeyEnv returns the environment variable that holds id's API key, or
// "" for vendors that need none.
func APIKeyEnv(id llmstream.ProviderID) string {
	return apiKeyEnv[id]
}

// NewModel builds the transport model for the vendor id. An empty apiKey
// is read from the vendor's environment variable.
func NewModel(ctx context.Context, id llmstream.ProviderID, apiKey string, opts ...Option) (llmstream.Model, error) {
	o := newOptions(opts)
	if apiKey == "" && APIKeyEnv(id) != "" {
		apiKey = os.Getenv(APIKeyEnv(id))
	}

	switch id.Family() {
	case llmstream.WireFamilyAnthropic:
		modelOpts := []anthropic.ModelOption{anthropic.WithStreaming(o.stream)}
		if o.baseURL != "" {
			modelOpts = append(modelOpts, anthropic.WithBaseURL(o.baseURL))
		}
		m, err := anthropic.NewModel(apiKey, modelOpts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	case llmstream.WireFamilyGemini:
		modelOpts := []gemini.ModelOption{gemini.WithStreaming(o.stream)}
		if o.baseURL != "" {
			modelOpts = append(modelOpts, gemini.WithBaseURL(o.baseURL))
		}
		m, err := gemini.NewModel(ctx, apiKey, modelOpts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	case llmstream.WireFamilyChat, llmstream.WireFamilyResponses:
		if id == llmstream.ProviderLorem {
			return lorem.NewModel(lorem.WithStreaming(o.stream), lorem.WithLogger(o.logger)), nil
		}
		// Must agree with the compat transformer NewTransformer picks
		if id == llmstream.ProviderOpenAI && openai.UsesResponsesAPI(o.model) {
			id = llmstream.ProviderOpenAIResponse
		}
		modelOpts := []openai.ModelOption{openai.WithStreaming(o.stream)}
		if o.baseURL != "" {
			modelOpts = append(modelOpts, openai.WithBaseURL(o.baseURL))
		}
		m, err := openai.NewModel(id, apiKey, modelOpts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", llmstream.ErrUnknownProvider, id)
	}
}
