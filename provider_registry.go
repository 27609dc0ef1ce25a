package llmstream

// ProviderID represents a unique vendor identifier.
// Transformers check it before probing vendor-specific fields, since field
// names like "citations" collide across vendors.
type ProviderID string

// Known provider identifiers
const (
	// ProviderOpenAI is OpenAI's chat completions API
	ProviderOpenAI ProviderID = "openai"

	// ProviderOpenAIResponse is OpenAI's Responses API (typed event stream)
	ProviderOpenAIResponse ProviderID = "openai-response"

	// ProviderOpenRouter proxies many vendors behind an OpenAI-compatible API
	ProviderOpenRouter ProviderID = "openrouter"

	// ProviderGrok is xAI's OpenAI-compatible API
	ProviderGrok ProviderID = "grok"

	// ProviderPerplexity is Perplexity's OpenAI-compatible API
	ProviderPerplexity ProviderID = "perplexity"

	// ProviderDeepSeek is DeepSeek's OpenAI-compatible API (reasoning_content)
	ProviderDeepSeek ProviderID = "deepseek"

	// ProviderZhipu is Zhipu's OpenAI-compatible API (web_search array)
	ProviderZhipu ProviderID = "zhipu"

	// ProviderQwen is Alibaba DashScope's OpenAI-compatible API (search_info)
	ProviderQwen ProviderID = "qwen"

	// ProviderHunyuan is Tencent Hunyuan's OpenAI-compatible API (search_info)
	ProviderHunyuan ProviderID = "hunyuan"

	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderGemini is Google's Gemini API
	ProviderGemini ProviderID = "gemini"

	// ProviderLorem is the mock Lorem provider for testing
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// Family returns the wire-shape family a provider's raw chunks belong to.
func (p ProviderID) Family() WireFamily {
	switch p {
	case ProviderAnthropic:
		return WireFamilyAnthropic
	case ProviderGemini:
		return WireFamilyGemini
	case ProviderOpenAIResponse:
		return WireFamilyResponses
	case ProviderOpenAI, ProviderOpenRouter, ProviderGrok, ProviderPerplexity,
		ProviderDeepSeek, ProviderZhipu, ProviderQwen, ProviderHunyuan, ProviderLorem:
		return WireFamilyChat
	default:
		return WireFamilyUnknown
	}
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	return p.Family() != WireFamilyUnknown
}

// WireFamily tags the structural shape of a vendor's raw chunks.
type WireFamily int

const (
	WireFamilyUnknown   WireFamily = iota
	WireFamilyChat                 // delta/message hybrid (OpenAI chat completions)
	WireFamilyResponses            // OpenAI Responses API typed events
	WireFamilyAnthropic            // Anthropic typed event stream
	WireFamilyGemini               // Gemini candidate/part stream
)

func (f WireFamily) String() string {
	switch f {
	case WireFamilyChat:
		return "chat"
	case WireFamilyResponses:
		return "responses"
	case WireFamilyAnthropic:
		return "anthropic"
	case WireFamilyGemini:
		return "gemini"
	default:
		return "unknown"
	}
}
