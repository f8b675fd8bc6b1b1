package testutil

import (
	"fmt"
	"sync"
)

// IDSequence generates "<prefix>-1", "<prefix>-2", ... in call order.
//
// Continuation ids never reach canonical traces, but they do appear in
// debug logs; a sequence keeps those identical between runs of the same
// scenario.
//
// Implements engine.IDGenerator. Safe for concurrent use.
type IDSequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewIDSequence creates a sequence. An empty prefix becomes "id".
func NewIDSequence(prefix string) *IDSequence {
	if prefix == "" {
		prefix = "id"
	}
	return &IDSequence{prefix: prefix}
}

// Generate returns the next id.
func (s *IDSequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}
