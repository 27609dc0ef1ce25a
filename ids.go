package llmstream

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newULID returns a lexically sortable id, strictly increasing within a process.
func newULID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}

// NewToolResponseID generates the stable id of one ToolResponse.
func NewToolResponseID() string {
	return "tr_" + newULID()
}

// NewToolCallID generates an id for vendors that send tool calls without one.
func NewToolCallID() string {
	return "call_" + newULID()
}

// NewRequestID generates the id of one Engine.Run.
func NewRequestID() string {
	return uuid.NewString()
}
