package openai

import (
	"strings"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// CompatMode says how a CompatTransformer reads its chunks.
type CompatMode int

const (
	// CompatDirect reads Responses API events itself.
	CompatDirect CompatMode = iota
	// CompatDelegating hands chat-completions chunks to a ChatTransformer.
	CompatDelegating
)

func (m CompatMode) String() string {
	if m == CompatDirect {
		return "direct"
	}
	return "delegating"
}

// responsesOnlyPrefixes are OpenAI models served only by the Responses API.
var responsesOnlyPrefixes = []string{
	"o1-pro",
	"o3-pro",
	"o3-deep-research",
	"o4-mini-deep-research",
	"codex-",
	"gpt-5-codex",
	"computer-use-",
}

// UsesResponsesAPI reports whether model must be called through the Responses API.
func UsesResponsesAPI(model string) bool {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	for _, prefix := range responsesOnlyPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// CompatTransformer serves OpenAI models whichever API they need. The mode
// is fixed at construction from the model id; exactly one of the inner
// transformers is set.
type CompatTransformer struct {
	mode      CompatMode
	responses *ResponsesTransformer
	chat      *ChatTransformer
}

// NewCompatTransformer resolves the mode for model once.
func NewCompatTransformer(model string, opts ...ChatOption) *CompatTransformer {
	if UsesResponsesAPI(model) {
		return &CompatTransformer{mode: CompatDirect, responses: NewResponsesTransformer(opts...)}
	}
	return &CompatTransformer{mode: CompatDelegating, chat: NewChatTransformer(llmstream.ProviderOpenAI, opts...)}
}

// Mode returns the resolved mode.
func (c *CompatTransformer) Mode() CompatMode { return c.mode }

// Provider returns the provider id of the API in use.
func (c *CompatTransformer) Provider() llmstream.ProviderID {
	if c.mode == CompatDirect {
		return c.responses.Provider()
	}
	return c.chat.Provider()
}

// Transform forwards to the resolved transformer.
func (c *CompatTransformer) Transform(raw llmstream.RawChunk, state *llmstream.TurnState, emit llmstream.Emit) error {
	if c.mode == CompatDirect {
		return c.responses.Transform(raw, state, emit)
	}
	return c.chat.Transform(raw, state, emit)
}

// Flush forwards to the resolved transformer.
func (c *CompatTransformer) Flush(state *llmstream.TurnState, emit llmstream.Emit) error {
	if c.mode == CompatDirect {
		return c.responses.Flush(state, emit)
	}
	return c.chat.Flush(state, emit)
}
