package compiler

import "github.com/roach88/ixgraph/internal/authoring"

// Exporter lowers one authoring unit into graph nodes.
type Exporter interface {
	Export(ctx *Context, u *authoring.Unit) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx *Context, u *authoring.Unit) error

// Export calls f.
func (f ExporterFunc) Export(ctx *Context, u *authoring.Unit) error {
	return f(ctx, u)
}

// Generic unit kinds resolved through the (owner, member) table.
const (
	KindGetMember         = "GetMember"
	KindSetMember         = "SetMember"
	KindInterpolateMember = "InterpolateMember"
	KindInvokeMember      = "InvokeMember"
)

type memberKey struct {
	kind, owner, member string
}

// Registry maps unit kinds and members to exporters. It is immutable.
type Registry struct {
	kinds   map[string]Exporter
	members map[memberKey]Exporter
}

// Lookup finds the exporter for u: the exact kind first, then
// (kind, owner, member) for the generic member kinds.
func (r *Registry) Lookup(u *authoring.Unit) (Exporter, bool) {
	if e, ok := r.kinds[u.Kind]; ok {
		return e, true
	}
	e, ok := r.members[memberKey{u.Kind, u.Owner, u.Member}]
	return e, ok
}

// Len returns the number of kind and member registrations.
func (r *Registry) Len() int {
	return len(r.kinds) + len(r.members)
}

// RegistryBuilder accumulates registrations. Build freezes them.
type RegistryBuilder struct {
	kinds   map[string]Exporter
	members map[memberKey]Exporter
}

// NewRegistryBuilder creates an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		kinds:   map[string]Exporter{},
		members: map[memberKey]Exporter{},
	}
}

// Kind registers e for a unit kind. A later registration replaces an earlier one.
func (b *RegistryBuilder) Kind(kind string, e Exporter) *RegistryBuilder {
	b.kinds[kind] = e
	return b
}

// Member registers e for a generic member kind on (owner, member).
func (b *RegistryBuilder) Member(kind, owner, member string, e Exporter) *RegistryBuilder {
	b.members[memberKey{kind, owner, member}] = e
	return b
}

// Build returns the immutable registry.
func (b *RegistryBuilder) Build() *Registry {
	r := &Registry{
		kinds:   make(map[string]Exporter, len(b.kinds)),
		members: make(map[memberKey]Exporter, len(b.members)),
	}
	for k, e := range b.kinds {
		r.kinds[k] = e
	}
	for k, e := range b.members {
		r.members[k] = e
	}
	return r
}
