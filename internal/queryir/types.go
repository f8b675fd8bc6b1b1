package queryir

import "github.com/roach88/ixgraph/internal/engine"

// Query is a read of stored trace events.
type Query interface {
	queryNode()
}

// Predicate filters trace events.
type Predicate interface {
	predicateNode()
}

// Field names a trace event column.
type Field string

const (
	FieldKind    Field = "kind"
	FieldNode    Field = "node"
	FieldOp      Field = "op"
	FieldSocket  Field = "socket"
	FieldMessage Field = "message"
)

// Fields lists every queryable field.
var Fields = []Field{FieldKind, FieldNode, FieldOp, FieldSocket, FieldMessage}

// Valid reports whether f names a trace column.
func (f Field) Valid() bool {
	switch f {
	case FieldKind, FieldNode, FieldOp, FieldSocket, FieldMessage:
		return true
	}
	return false
}

// Numeric reports whether f is an integer column.
func (f Field) Numeric() bool { return f == FieldNode }

// Select reads the events of one session, or of every session recorded
// for Graph when Session is empty. Results are ordered by session, then
// seq.
//
//	Select{
//	  Session: "0190c1a2-...",
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: FieldKind, Value: "log"},
//	    Prefix{Field: FieldOp, Prefix: "debug/"},
//	  }},
//	}
//
// compiles to
//
//	SELECT ... FROM trace_events t
//	WHERE t.session_id = ? AND (t.kind = ?) AND (substr(t.op, 1, ?) = ?)
//	ORDER BY t.session_id COLLATE BINARY ASC, t.seq ASC
type Select struct {
	Session string
	Graph   string
	Filter  Predicate // nil matches every event
	After   int64     // only events with seq > After
	Limit   int       // 0 means no limit
}

func (Select) queryNode() {}

// Equals matches events whose field equals Value. Value is an int for
// FieldNode and a string otherwise.
type Equals struct {
	Field Field
	Value any
}

func (Equals) predicateNode() {}

// Prefix matches events whose text field starts with Prefix.
type Prefix struct {
	Field  Field
	Prefix string
}

func (Prefix) predicateNode() {}

// And matches events that satisfy every predicate. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds the conjunction of preds, dropping nils. It returns nil
// when nothing is left.
func Where(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}

// value returns the column value of f on ev.
func value(ev engine.TraceEvent, f Field) any {
	switch f {
	case FieldKind:
		return string(ev.Kind)
	case FieldNode:
		return ev.Node
	case FieldOp:
		return ev.Op
	case FieldSocket:
		return ev.Socket
	case FieldMessage:
		return ev.Message
	}
	return nil
}
