package store

import (
	"fmt"

	"github.com/roach88/ixgraph/internal/codec"
	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

// marshalGraph encodes g canonically and returns the encoding with its
// content-addressed id.
func marshalGraph(g *ir.Graph) (id string, encoded string, err error) {
	data, err := codec.Encode(g)
	if err != nil {
		return "", "", fmt.Errorf("marshal graph: %w", err)
	}
	return ir.GraphID(data), string(data), nil
}

// unmarshalGraph decodes a stored encoding against reg.
func unmarshalGraph(data string, reg *schema.Registry) (*ir.Graph, error) {
	g, err := codec.Decode([]byte(data), reg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	return g, nil
}

// traceDigest hashes the canonical form of a stored trace.
func traceDigest(events []engine.TraceEvent) (string, error) {
	d, err := engine.Digest(events)
	if err != nil {
		return "", fmt.Errorf("trace digest: %w", err)
	}
	return d, nil
}
