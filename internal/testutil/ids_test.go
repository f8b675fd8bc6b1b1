package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSequence(t *testing.T) {
	s := NewIDSequence("door")
	assert.Equal(t, "door-1", s.Generate())
	assert.Equal(t, "door-2", s.Generate())
	assert.Equal(t, "door-3", s.Generate())
}

func TestIDSequence_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-1", NewIDSequence("").Generate())
}

func TestIDSequence_Concurrent(t *testing.T) {
	s := NewIDSequence("c")
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}
