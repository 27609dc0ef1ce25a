package llmstream

// Emit delivers one generic chunk downstream. It returns an error only when
// the consumer is gone (cancellation); transformers stop and return it.
type Emit func(Chunk) error

// ChunkTransformer converts the raw chunks of one vendor wire family into
// generic chunks. Implementations keep no per-turn state of their own:
// everything that must survive between chunks lives in the TurnState the
// pipeline passes in, which is reset at each turn.
//
// Transform returns an error only for vendor-reported fatal errors (an
// in-stream error event); malformed tool arguments and unknown chunk shapes
// are not errors. Flush runs once the raw stream is exhausted and completes
// the turn if no finish signal already did.
type ChunkTransformer interface {
	Provider() ProviderID
	Transform(raw RawChunk, state *TurnState, emit Emit) error
	Flush(state *TurnState, emit Emit) error
}

// TransformerFactory creates a fresh transformer for one pipeline.
type TransformerFactory func() ChunkTransformer

// FlushTurn is the shared Flush behavior: complete the turn unless a finish
// signal already did. Transformers with nothing extra to drain delegate to it.
func FlushTurn(state *TurnState, emit Emit) error {
	return state.Complete(emit)
}
