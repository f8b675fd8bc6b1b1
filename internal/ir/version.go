package ir

// Version constants for the wire format and engine.
const (
	// FormatVersion is the wire format version written by the codec.
	FormatVersion = "1"

	// EngineVersion is the ixgraph engine version.
	EngineVersion = "0.1.0"
)
