package schema

import (
	"fmt"
	"sync"
)

// Registry is an immutable catalog of operation schemas.
type Registry struct {
	ops   map[string]*OpSchema
	order []string // registration order
}

// NewRegistry builds a registry. A duplicate or empty op id is an error.
func NewRegistry(schemas ...OpSchema) (*Registry, error) {
	r := &Registry{ops: make(map[string]*OpSchema, len(schemas))}
	for i := range schemas {
		s := schemas[i]
		if s.Op == "" {
			return nil, fmt.Errorf("schema %d: empty op id", i)
		}
		if _, exists := r.ops[s.Op]; exists {
			return nil, fmt.Errorf("duplicate op %q", s.Op)
		}
		r.ops[s.Op] = &s
		r.order = append(r.order, s.Op)
	}
	return r, nil
}

// Lookup returns the schema for op.
func (r *Registry) Lookup(op string) (*OpSchema, bool) {
	s, ok := r.ops[op]
	return s, ok
}

// Ops returns all op ids in registration order.
func (r *Registry) Ops() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered ops.
func (r *Registry) Len() int {
	return len(r.order)
}

var standard = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(standardOps()...)
	if err != nil {
		panic(fmt.Sprintf("schema: standard catalog: %v", err))
	}
	return r
})

// Standard returns the built-in catalog. It is built once and shared.
func Standard() *Registry {
	return standard()
}
