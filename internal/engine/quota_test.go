package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaEnforcer(t *testing.T) {
	q := NewQuotaEnforcer(3)
	for range 3 {
		require.NoError(t, q.Check("s1"))
	}
	err := q.Check("s1")
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))
	assert.True(t, IsQuotaError(err))
	assert.Equal(t, "s1", err.(*StepsExceededError).Session)
	assert.Equal(t, 4, q.Current())

	q.Reset()
	assert.Zero(t, q.Current())
	assert.NoError(t, q.Check("s1"))
	assert.Equal(t, 3, q.MaxSteps())
}

func TestQuotaErrorWrapping(t *testing.T) {
	cause := &StepsExceededError{Session: "s1", Steps: 11, Limit: 10}
	err := fmt.Errorf("tick: %w", NewQuotaError("s1", 4, cause))

	assert.True(t, IsQuotaError(err))
	assert.True(t, IsStepsExceededError(err))
	assert.False(t, IsLoadError(err))
	assert.Contains(t, err.Error(), "node=4")
}

func TestClockIsMonotonic(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, int64(101), c.Next())
	assert.Equal(t, int64(101), c.Current())

	var wg sync.WaitGroup
	seen := sync.Map{}
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, dup := seen.LoadOrStore(c.Next(), true)
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1101), c.Current())
}

func TestIDGenerators(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "UUIDv7 ids sort by creation time")

	f := NewFixedGenerator("x", "y")
	assert.Equal(t, "x", f.Generate())
	assert.Equal(t, "y", f.Generate())
	assert.Panics(t, func() { f.Generate() })
}
