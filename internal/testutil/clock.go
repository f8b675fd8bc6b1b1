package testutil

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Epoch is where every SimClock starts. A fixed origin keeps timing
// outputs identical across runs.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// SimClock is a simulated time source for sessions under test.
//
// It wraps a clock.Mock (pass Mock() to engine.WithClock) and advances it
// in fractional seconds, the unit scenario ticks are written in.
//
// Thread-safety: All methods are safe for concurrent use.
type SimClock struct {
	mu      sync.Mutex
	mock    *clock.Mock
	elapsed time.Duration
}

// NewSimClock creates a clock at Epoch.
func NewSimClock() *SimClock {
	m := clock.NewMock()
	m.Set(Epoch)
	return &SimClock{mock: m}
}

// Mock returns the underlying mock clock.
func (c *SimClock) Mock() *clock.Mock {
	return c.mock
}

// Advance moves time forward by seconds, rounded to the nearest
// nanosecond. Negative and non-finite values are ignored.
func (c *SimClock) Advance(seconds float64) {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return
	}
	d := time.Duration(math.Round(seconds * float64(time.Second)))
	c.mu.Lock()
	c.elapsed += d
	c.mu.Unlock()
	c.mock.Add(d)
}

// Elapsed returns the total time advanced since Epoch.
func (c *SimClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Reset moves the clock back to Epoch.
func (c *SimClock) Reset() {
	c.mu.Lock()
	c.elapsed = 0
	c.mu.Unlock()
	c.mock.Set(Epoch)
}
