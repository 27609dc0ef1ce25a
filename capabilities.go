package llmstream

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/capabilities/*.yaml
var capabilitiesFS embed.FS

// Model metadata is advisory: it prices completions, picks thinking
// budgets and produces request warnings, but never blocks a request.
// Vendors ship models faster than this table is updated; callers can layer
// their own data with LoadCapabilitiesFromFile or RegisterProviderCapabilities.

// ProviderCapabilities is the capability file of one provider.
type ProviderCapabilities struct {
	Version     string                     `yaml:"version"`
	LastUpdated string                     `yaml:"last_updated"`
	Provider    string                     `yaml:"provider"`
	Models      map[string]ModelCapability `yaml:"models"`
}

// ModelCapability describes one model.
type ModelCapability struct {
	ContextWindow   int                `yaml:"context_window"`
	MaxOutputTokens int                `yaml:"max_output_tokens"`
	Features        ModelFeatures      `yaml:"features"`
	Thinking        ThinkingCapability `yaml:"thinking"`
	Pricing         PricingInfo        `yaml:"pricing"`
}

// ModelFeatures lists what a model accepts.
type ModelFeatures struct {
	Vision    bool `yaml:"vision"`
	Tools     bool `yaml:"tools"`
	Thinking  bool `yaml:"thinking"`
	Streaming bool `yaml:"streaming"`
	WebSearch bool `yaml:"web_search"`
}

// ThinkingCapability bounds a model's reasoning budget.
type ThinkingCapability struct {
	MinBudget      int            `yaml:"min_budget"`
	MaxBudget      int            `yaml:"max_budget"`
	EffortToBudget map[string]int `yaml:"effort_to_budget"`
}

// PricingInfo is in USD per million tokens.
type PricingInfo struct {
	InputPer1M  float64 `yaml:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m"`
}

// IsZero reports whether no price is known.
func (p PricingInfo) IsZero() bool {
	return p.InputPer1M == 0 && p.OutputPer1M == 0
}

// Cost returns the price of usage at this model's rates.
func (p PricingInfo) Cost(u Usage) float64 {
	return (float64(u.PromptTokens)*p.InputPer1M + float64(u.CompletionTokens)*p.OutputPer1M) / 1_000_000
}

// defaultEffortBudgets apply to models without their own effort table.
var defaultEffortBudgets = map[string]int{
	"low":    2000,
	"medium": 5000,
	"high":   12000,
}

// CapabilityRegistry holds capabilities by provider id.
type CapabilityRegistry struct {
	capabilities map[string]*ProviderCapabilities
	mu           sync.RWMutex
}

var (
	globalRegistry     *CapabilityRegistry
	globalRegistryOnce sync.Once
)

// NewCapabilityRegistry creates an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{capabilities: make(map[string]*ProviderCapabilities)}
}

// GetCapabilityRegistry returns the process-wide registry, loaded from the
// embedded YAML files on first use.
func GetCapabilityRegistry() *CapabilityRegistry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewCapabilityRegistry()
		if err := globalRegistry.loadEmbedded(); err != nil {
			// Missing capabilities only disable cost reporting
			slog.Warn("failed to load embedded capabilities", "error", err)
		}
	})
	return globalRegistry
}

func (r *CapabilityRegistry) loadEmbedded() error {
	const dir = "config/capabilities"
	entries, err := fs.ReadDir(capabilitiesFS, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		data, err := capabilitiesFS.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := r.load(data); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (r *CapabilityRegistry) load(data []byte) error {
	var caps ProviderCapabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	if caps.Provider == "" {
		return fmt.Errorf("capabilities file has no provider")
	}
	r.RegisterProviderCapabilities(caps.Provider, &caps)
	return nil
}

// GetProviderCapabilities returns the capabilities registered for provider.
func (r *CapabilityRegistry) GetProviderCapabilities(provider string) (*ProviderCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps, ok := r.capabilities[provider]
	if !ok {
		return nil, fmt.Errorf("no capabilities found for provider: %s", provider)
	}
	return caps, nil
}

// GetModelCapability returns capabilities for a specific model.
// Dated model ids ("claude-haiku-4-5-20251001") and vendor-prefixed ids
// ("anthropic/claude-haiku-4-5") fall back to the longest known prefix.
func (r *CapabilityRegistry) GetModelCapability(provider, model string) (*ModelCapability, error) {
	caps, err := r.GetProviderCapabilities(provider)
	if err != nil {
		return nil, err
	}

	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if m, ok := caps.Models[model]; ok {
		return &m, nil
	}

	best := ""
	for name := range caps.Models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return nil, fmt.Errorf("model %s not found for provider %s", model, provider)
	}
	m := caps.Models[best]
	return &m, nil
}

// SupportsModel reports whether the model is known.
func (r *CapabilityRegistry) SupportsModel(provider, model string) bool {
	_, err := r.GetModelCapability(provider, model)
	return err == nil
}

// SupportsThinking reports whether a known model supports extended thinking.
func (r *CapabilityRegistry) SupportsThinking(provider, model string) bool {
	m, err := r.GetModelCapability(provider, model)
	return err == nil && m.Features.Thinking
}

// Cost prices usage for a model. ok is false when the model has no pricing.
func (r *CapabilityRegistry) Cost(provider, model string, u Usage) (cost float64, ok bool) {
	m, err := r.GetModelCapability(provider, model)
	if err != nil || m.Pricing.IsZero() {
		return 0, false
	}
	return m.Pricing.Cost(u), true
}

// ConvertEffortToBudget maps "low", "medium" or "high" to a thinking
// token budget, preferring the model's own table.
func (r *CapabilityRegistry) ConvertEffortToBudget(provider, model, effort string) (int, error) {
	if m, err := r.GetModelCapability(provider, model); err == nil {
		if budget, ok := m.Thinking.EffortToBudget[effort]; ok {
			return budget, nil
		}
	} else {
		slog.Debug("model not in capability registry, using default thinking budget",
			"provider", provider, "model", model, "effort", effort)
	}

	budget, ok := defaultEffortBudgets[effort]
	if !ok {
		return 0, fmt.Errorf("unknown effort level: %s (valid: low, medium, high)", effort)
	}
	return budget, nil
}

// LoadCapabilitiesFromFile adds or replaces one provider's capabilities
// from a YAML file in the embedded format.
func (r *CapabilityRegistry) LoadCapabilitiesFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read capabilities file: %w", err)
	}
	return r.load(data)
}

// RegisterProviderCapabilities adds or replaces one provider's capabilities.
func (r *CapabilityRegistry) RegisterProviderCapabilities(provider string, caps *ProviderCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[provider] = caps
}

// LoadCapabilitiesFromFile loads into the process-wide registry.
func LoadCapabilitiesFromFile(path string) error {
	return GetCapabilityRegistry().LoadCapabilitiesFromFile(path)
}

// RegisterProviderCapabilities registers with the process-wide registry.
func RegisterProviderCapabilities(provider string, caps *ProviderCapabilities) {
	GetCapabilityRegistry().RegisterProviderCapabilities(provider, caps)
}
