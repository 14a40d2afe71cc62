package types

import "fmt"

// Mode is the scanning mode a database was compiled for.
type Mode int

const (
	// ModeBlock databases scan one contiguous buffer per call.
	ModeBlock Mode = iota + 1
	// ModeVectored databases scan an ordered list of buffers as one input.
	ModeVectored
	// ModeStreaming databases scan open-ended streams chunk by chunk.
	ModeStreaming
)

// String returns the mode name as reported by database info.
func (m Mode) String() string {
	switch m {
	case ModeBlock:
		return "BLOCK"
	case ModeVectored:
		return "VECTORED"
	case ModeStreaming:
		return "STREAM"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	return m == ModeBlock || m == ModeVectored || m == ModeStreaming
}

// ParseMode parses a mode name (block, vectored, stream/streaming).
func ParseMode(s string) (Mode, error) {
	switch s {
	case "block", "BLOCK":
		return ModeBlock, nil
	case "vectored", "VECTORED":
		return ModeVectored, nil
	case "stream", "streaming", "STREAM":
		return ModeStreaming, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}
