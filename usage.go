package llmstream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// Aggregator merges the per-turn completions of one request into the single
// outward llm_response.complete. Within a turn the vendor's last reported
// usage wins (TurnState); across turns usage is summed, since every turn is
// an independent vendor call.
type Aggregator struct {
	provider ProviderID
	model    string
	pricing  *CapabilityRegistry
	now      func() time.Time

	started    time.Time
	turns      int
	usage      Usage
	metrics    Metrics
	stopReason string
}

// NewAggregator creates an aggregator for one request. A nil pricing
// registry disables cost reporting.
func NewAggregator(provider ProviderID, model string, pricing *CapabilityRegistry, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		provider: provider,
		model:    model,
		pricing:  pricing,
		now:      now,
		started:  now(),
	}
}

// AddTurn absorbs one per-turn llm_response.complete chunk.
func (a *Aggregator) AddTurn(c Chunk) {
	if c.Type != ChunkResponseComplete {
		return
	}
	if c.Usage != nil {
		a.usage = a.usage.Add(c.Usage.Normalized())
	}
	if c.Metrics != nil {
		if a.turns == 0 {
			a.metrics.FirstTokenMillis = c.Metrics.FirstTokenMillis
		}
		a.metrics.ThinkingMillis += c.Metrics.ThinkingMillis
	}
	if c.StopReason != "" {
		a.stopReason = c.StopReason
	}
	a.turns++
}

// Turns returns the number of turns absorbed so far.
func (a *Aggregator) Turns() int { return a.turns }

// Usage returns the usage summed so far.
func (a *Aggregator) Usage() Usage { return a.usage }

// Final builds the outward completion chunk.
func (a *Aggregator) Final(turn int) Chunk {
	usage := a.usage
	metrics := a.metrics
	metrics.CompletionMillis = a.now().Sub(a.started).Milliseconds()

	c := Chunk{
		Type:       ChunkResponseComplete,
		Turn:       turn,
		Usage:      &usage,
		Metrics:    &metrics,
		StopReason: a.stopReason,
	}
	if a.pricing != nil {
		if cost, ok := a.pricing.Cost(a.provider.String(), a.model, usage); ok {
			c.Cost = &cost
		}
	}
	return c
}

// TokenEstimator counts tokens locally for turns whose vendor reports no usage.
type TokenEstimator interface {
	CountTokens(text string) int
}

// TiktokenEstimator counts with the cl100k_base encoding. The encoding is
// loaded on first use; if it cannot be loaded it falls back to four
// characters per token.
type TiktokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenEstimator creates an estimator with lazy encoding load.
func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{}
}

// CountTokens returns the estimated token count of text.
func (e *TiktokenEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			slog.Debug("tiktoken encoding unavailable, using character heuristic", "error", err)
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// EstimateUsage estimates a turn's usage from the conversation it was sent
// and what the turn produced.
func EstimateUsage(est TokenEstimator, conv *Conversation, state *TurnState) Usage {
	prompt := 0
	if conv != nil {
		prompt += est.CountTokens(conv.Params.GetSystem())
		for _, msg := range conv.Messages {
			for _, b := range msg.Blocks {
				prompt += est.CountTokens(b.Text())
				if input, ok := b.GetToolInput(); ok {
					if raw, err := json.Marshal(input); err == nil {
						prompt += est.CountTokens(string(raw))
					}
				}
			}
		}
	}

	completion := 0
	for _, b := range state.Transcript() {
		completion += est.CountTokens(b.Text())
	}
	for _, call := range state.ToolCalls() {
		completion += est.CountTokens(call.Name) + est.CountTokens(call.Arguments)
	}

	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}
