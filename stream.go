package llmstream

import (
	"context"
	"io"
	"iter"
	"sync"
	"sync/atomic"
)

// Stream is the ordered, single-producer channel of generic chunks for one
// request. The consumer pulls with Next; the producer blocks when the
// buffer is full, which in turn stops it reading from the vendor.
//
//	stream := engine.Run(ctx, req)
//	for {
//	  chunk, err := stream.Next(ctx)
//	  if err == io.EOF { break }
//	  if err != nil { return err }
//	  ...
//	}
//	if err := stream.Err(); err != nil { ... } // transport error
type Stream struct {
	ch       chan Chunk
	done     chan struct{}
	cancel   context.CancelFunc
	canceled atomic.Bool

	mu  sync.Mutex
	err error
}

// newStream creates a stream and the context its producer must run under.
// Canceling the stream cancels that context.
func newStream(parent context.Context, capacity int) (*Stream, context.Context) {
	if capacity < 0 {
		capacity = 0
	}
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		ch:     make(chan Chunk, capacity),
		done:   make(chan struct{}),
		cancel: cancel,
	}, ctx
}

// send delivers a chunk, blocking while the buffer is full. It fails once
// the producer context is canceled.
func (s *Stream) send(ctx context.Context, c Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish ends the stream; err is the transport error, if any.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
	close(s.done)
	s.cancel()
}

// Next returns the next chunk in order. It returns io.EOF after the last
// chunk and context.Canceled once Cancel was called; buffered chunks are
// discarded after cancellation.
func (s *Stream) Next(ctx context.Context) (Chunk, error) {
	if s.canceled.Load() {
		return Chunk{}, context.Canceled
	}
	select {
	case c, ok := <-s.ch:
		if s.canceled.Load() {
			return Chunk{}, context.Canceled
		}
		if !ok {
			return Chunk{}, io.EOF
		}
		return c, nil
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

// Chunks returns an iterator over the remaining chunks. Iteration stops at
// the end of the stream or on cancellation; check Err afterwards.
func (s *Stream) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for {
			c, err := s.Next(context.Background())
			if err != nil {
				return
			}
			if !yield(c) {
				return
			}
		}
	}
}

// Err returns the error that ended the stream: nil after natural
// completion, context.Canceled after Cancel, otherwise the transport error.
// It is only meaningful once Next has returned io.EOF or Done is closed.
func (s *Stream) Err() error {
	if s.canceled.Load() {
		return context.Canceled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops the request: the vendor stream is closed, in-flight tools
// are canceled and no further chunk is returned. Safe to call repeatedly.
func (s *Stream) Cancel() {
	s.canceled.Store(true)
	s.cancel()
}

// Done is closed once the producer has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}
