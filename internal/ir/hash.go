package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainGraph = "ixgraph/graph/v1"
	DomainTrace = "ixgraph/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GraphID returns the content-addressed id of an encoded graph.
// Encoding is canonical, so equal graphs share an id.
func GraphID(encoded []byte) string {
	return hashWithDomain(DomainGraph, encoded)
}

// TraceDigest returns the content hash of a canonical session trace.
func TraceDigest(canonicalTrace []byte) string {
	return hashWithDomain(DomainTrace, canonicalTrace)
}
