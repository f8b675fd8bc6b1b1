package host

import (
	"fmt"
	"math"
	"sync"

	"github.com/roach88/ixgraph/internal/ir"
)

type entry struct {
	value    ir.Value
	readOnly bool
}

// MemoryState is a StateAccessor over a flat map of typed entries.
// It is safe for concurrent use.
type MemoryState struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryState creates an empty state.
func NewMemoryState() *MemoryState {
	return &MemoryState{entries: map[string]*entry{}}
}

// Define creates or replaces the entry at path. The entry's type is the
// signature of v.
func (m *MemoryState) Define(path string, v ir.Value, readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = &entry{value: v, readOnly: readOnly}
}

func (m *MemoryState) Get(path string) (ir.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[path]
	if !ok {
		return nil, &HostIntegrationError{Op: "get", Target: path, Reason: ReasonNoSuchPath}
	}
	return e.value, nil
}

func (m *MemoryState) Set(path string, v ir.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	switch {
	case !ok:
		return &HostIntegrationError{Op: "set", Target: path, Reason: ReasonNoSuchPath}
	case e.readOnly:
		return &HostIntegrationError{Op: "set", Target: path, Reason: ReasonReadOnly}
	case v == nil || v.Signature() != e.value.Signature():
		return &HostIntegrationError{
			Op: "set", Target: path, Reason: ReasonTypeMismatch,
			Err: fmt.Errorf("want %s", e.value.Signature()),
		}
	}
	e.value = v
	return nil
}

func (m *MemoryState) Type(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[path]
	if !ok {
		return "", &HostIntegrationError{Op: "type", Target: path, Reason: ReasonNoSuchPath}
	}
	return e.value.Signature(), nil
}

// Snapshot copies every entry's current value.
func (m *MemoryState) Snapshot() map[string]ir.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ir.Value, len(m.entries))
	for k, e := range m.entries {
		out[k] = e.value
	}
	return out
}

// MemoryAnimation records the calls made on one animation.
type MemoryAnimation struct {
	Name      string
	Playing   bool
	StartTime float64
	EndTime   float64
	Speed     float64
	Plays     int
}

// Play starts the animation. Speed must be positive and finite and the
// times must not be NaN.
func (a *MemoryAnimation) Play(startTime, endTime, speed float64) error {
	if math.IsNaN(startTime) || math.IsNaN(endTime) || math.IsInf(startTime, 0) {
		return &HostIntegrationError{Op: "play", Target: a.Name, Reason: "invalid time range"}
	}
	if !(speed > 0) || math.IsInf(speed, 0) {
		return &HostIntegrationError{Op: "play", Target: a.Name, Reason: "invalid speed"}
	}
	a.Playing = true
	a.StartTime, a.EndTime, a.Speed = startTime, endTime, speed
	a.Plays++
	return nil
}

func (a *MemoryAnimation) Stop() error {
	a.Playing = false
	return nil
}

// MemoryAssets is an AssetLookup over a fixed animation list.
type MemoryAssets struct {
	mu    sync.Mutex
	anims []*MemoryAnimation
}

// NewMemoryAssets creates one animation per name, indexed in order.
func NewMemoryAssets(names ...string) *MemoryAssets {
	m := &MemoryAssets{}
	for _, n := range names {
		m.anims = append(m.anims, &MemoryAnimation{Name: n})
	}
	return m
}

func (m *MemoryAssets) Animation(index int) (Animation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.anims) {
		return nil, &HostIntegrationError{
			Op: "animation", Target: fmt.Sprintf("#%d", index), Reason: ReasonNoSuchAsset,
		}
	}
	return m.anims[index], nil
}

// Get returns the recorded animation at index, or nil.
func (m *MemoryAssets) Get(index int) *MemoryAnimation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.anims) {
		return nil
	}
	return m.anims[index]
}
