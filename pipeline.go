package llmstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/haowjy/meridian-stream-go/internal/tracer"
)

// Engine runs requests: it pumps each turn's raw chunks through the
// request's transformer, hands tool calls to an orchestrator, feeds results
// back as a new turn and finally emits one aggregated completion.
// An Engine is safe for concurrent use; every Run owns its own state,
// stream and orchestrator and shares only the immutable config and catalog.
type Engine struct {
	cfg       Config
	catalog   *ToolCatalog
	executor  ToolExecutor
	logger    *slog.Logger
	pricing   *CapabilityRegistry
	estimator TokenEstimator
	now       func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithCatalog sets the tools available to every request.
func WithCatalog(catalog *ToolCatalog) EngineOption {
	return func(e *Engine) { e.catalog = catalog }
}

// WithToolExecutor sets the executor for catalog tools registered without one.
func WithToolExecutor(executor ToolExecutor) EngineOption {
	return func(e *Engine) { e.executor = executor }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithPricing sets the capability registry used to price completions.
// Pass nil to disable cost reporting.
func WithPricing(registry *CapabilityRegistry) EngineOption {
	return func(e *Engine) { e.pricing = registry }
}

// WithEstimator sets the tokenizer used when a turn reports no usage.
func WithEstimator(est TokenEstimator) EngineOption {
	return func(e *Engine) { e.estimator = est }
}

// WithEngineClock replaces time.Now for latency metrics.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with the embedded default config.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
		pricing:   GetCapabilityRegistry(),
		estimator: NewTiktokenEstimator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one user-facing request.
type Request struct {
	// Model performs each turn's vendor call.
	Model Model

	// Transformer reads Model's raw chunks; see providers.NewTransformer.
	Transformer ChunkTransformer

	// Conversation is the starting context. Run never mutates it.
	Conversation *Conversation
}

// Run starts the request and returns its chunk stream. The stream ends
// after the aggregated llm_response.complete, after a transport error
// (an error chunk, no completion) or on cancellation (nothing further).
func (e *Engine) Run(ctx context.Context, req Request) *Stream {
	stream, pctx := newStream(ctx, e.cfg.ChannelCapacity)
	go e.run(pctx, stream, req)
	return stream
}

func (e *Engine) run(ctx context.Context, stream *Stream, req Request) {
	var runErr error
	defer func() { stream.finish(runErr) }()

	send := func(c Chunk) error { return stream.send(ctx, c) }

	if err := validateRequest(req); err != nil {
		runErr = err
		_ = send(errorChunk(err))
		return
	}

	provider := req.Transformer.Provider()
	conv := req.Conversation.Clone()
	if len(conv.Tools) == 0 {
		conv.Tools = e.catalog.Definitions()
	}

	requestID := NewRequestID()
	logger := e.logger.With("request_id", requestID, "provider", provider.String(), "model", conv.Model)

	ctx, span := tracer.StartSpan(ctx, "llmstream.request")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("request.id", requestID), tracer.StringAttr("provider", provider.String()))

	for _, w := range ConversationWarnings(e.pricing, provider, conv) {
		level := slog.LevelWarn
		if w.Severity == SeverityInfo {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, w.Message, "code", string(w.Code), "field", w.Field)
	}

	state := NewTurnState(provider, WithClock(e.now))
	agg := NewAggregator(provider, conv.Model, e.pricing, e.now)
	orch := NewOrchestrator(e.catalog, e.executor, e.cfg, logger)

	turn := 0
	for ; ; turn++ {
		if turn > 0 {
			state.Reset(turn)
		}

		completion, calls, err := e.runTurn(ctx, req, conv, state, send, logger)
		if err != nil {
			runErr = e.fail(ctx, err, send, logger)
			if runErr != nil && !IsCanceled(runErr) {
				tracer.RecordError(span, runErr)
			}
			return
		}

		if !state.UsageSeen() && e.cfg.EstimateMissingUsage && e.estimator != nil {
			est := EstimateUsage(e.estimator, conv, state)
			completion.Usage = &est
		}
		agg.AddTurn(completion)
		logger.Debug("turn complete", "turn", turn, "tool_calls", len(calls), "stop_reason", completion.StopReason)

		if len(calls) == 0 {
			break
		}
		if turn >= e.cfg.MaxToolRounds {
			err := fmt.Errorf("%w: limit is %d", ErrToolRoundsExceeded, e.cfg.MaxToolRounds)
			logger.Warn("tool rounds exceeded", "turn", turn, "limit", e.cfg.MaxToolRounds)
			if sendErr := send(Chunk{Type: ChunkError, Turn: turn, Error: &ChunkErr{Code: ErrorCodeToolRoundsExceeded, Message: err.Error()}}); sendErr != nil {
				runErr = ctx.Err()
				return
			}
			break
		}

		responses, err := orch.RunBatch(ctx, turn, calls, send)
		if err != nil {
			runErr = e.fail(ctx, err, send, logger)
			return
		}
		conv.Append(BuildToolRoundMessages(state.Transcript(), responses)...)
	}

	final := agg.Final(turn)
	if err := send(final); err != nil {
		runErr = ctx.Err()
		return
	}
	tracer.SetOK(span)
	logger.Info("request complete",
		"turns", agg.Turns(),
		"prompt_tokens", final.Usage.PromptTokens,
		"completion_tokens", final.Usage.CompletionTokens,
		"total_tokens", final.Usage.TotalTokens,
	)
}

// fail reports a turn failure. Cancellation emits nothing; any other error
// is a transport error surfaced as an error chunk.
func (e *Engine) fail(ctx context.Context, err error, send Emit, logger *slog.Logger) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug("request canceled", "error", ctxErr)
		return ctxErr
	}
	logger.Error("request failed", "error", err)
	_ = send(errorChunk(err))
	return err
}

type rawResult struct {
	raw RawChunk
	err error
}

// runTurn performs one vendor call. It returns the turn's own completion
// chunk (absorbed, never forwarded) and the tool calls the turn created.
func (e *Engine) runTurn(ctx context.Context, req Request, conv *Conversation, state *TurnState, send Emit, logger *slog.Logger) (Chunk, []ToolCall, error) {
	ctx, span := tracer.StartSpan(ctx, "llmstream.turn")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("turn", state.Turn))

	var completion *Chunk
	var calls []ToolCall
	emit := func(c Chunk) error {
		switch c.Type {
		case ChunkResponseComplete:
			cc := c
			completion = &cc
			return nil
		case ChunkToolCreated:
			calls = c.ToolCalls
		}
		return send(c)
	}

	turnCtx, cancelTurn := context.WithCancel(ctx)
	defer cancelTurn()

	src, err := req.Model.Open(turnCtx, conv)
	if err != nil {
		tracer.RecordError(span, err)
		return Chunk{}, nil, err
	}
	// A source blocked in Next may only return once its context ends, so the
	// turn is canceled before Close waits on it.
	defer func() {
		cancelTurn()
		_ = src.Close()
	}()

	// The pump lets the inactivity timer fire even when the source ignores
	// its context while blocked on the network.
	results := make(chan rawResult)
	go func() {
		defer close(results)
		for {
			raw, err := src.Next(turnCtx)
			select {
			case results <- rawResult{raw: raw, err: err}:
			case <-turnCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(e.cfg.StreamIdleTimeout)
	defer idle.Stop()

	for done := false; !done; {
		select {
		case <-ctx.Done():
			return Chunk{}, nil, ctx.Err()

		case <-idle.C:
			err := &ProviderError{
				Code:      ErrorCodeStreamIdle,
				Provider:  state.Provider.String(),
				Message:   fmt.Sprintf("no data from vendor stream for %s", e.cfg.StreamIdleTimeout),
				Retryable: true,
				Err:       ErrStreamIdle,
			}
			tracer.RecordError(span, err)
			return Chunk{}, nil, err

		case r, ok := <-results:
			if !ok {
				return Chunk{}, nil, ctx.Err()
			}
			if errors.Is(r.err, io.EOF) {
				done = true
				break
			}
			if r.err != nil {
				tracer.RecordError(span, r.err)
				return Chunk{}, nil, r.err
			}
			// Only vendor silence counts; time blocked on a slow consumer does not.
			idle.Stop()
			if err := req.Transformer.Transform(r.raw, state, emit); err != nil {
				return Chunk{}, nil, err
			}
			idle.Reset(e.cfg.StreamIdleTimeout)
		}
	}

	if err := req.Transformer.Flush(state, emit); err != nil {
		return Chunk{}, nil, err
	}
	if completion == nil {
		// Flush implementations complete the turn; this covers one that forgot.
		if err := state.Complete(emit); err != nil {
			return Chunk{}, nil, err
		}
	}
	if completion == nil {
		err := fmt.Errorf("%w: %s transformer completed turn %d outside the pipeline", ErrInternal, state.Provider, state.Turn)
		tracer.RecordError(span, err)
		return Chunk{}, nil, err
	}
	logger.Debug("turn stream drained", "turn", state.Turn)
	tracer.SetOK(span)
	return *completion, calls, nil
}

func validateRequest(req Request) error {
	switch {
	case req.Model == nil:
		return &ValidationError{Field: "model", Reason: "is required", Err: ErrInvalidRequest}
	case req.Transformer == nil:
		return fmt.Errorf("%w: no transformer for model provider %s", ErrUnknownProvider, req.Model.Provider())
	case req.Conversation == nil:
		return &ValidationError{Field: "conversation", Reason: "is required", Err: ErrInvalidRequest}
	}
	return ValidateRequestParams(req.Conversation.Params)
}
