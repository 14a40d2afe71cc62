// Package backend defines the contract between the scanning runtime and the
// engine that actually compiles and executes pattern databases.
//
// A backend reports failures as a Status, as a *types.CompileError from
// Compile, or as nil. The runtime in pkg/scan translates those into its own
// error kinds; backends never see the runtime's error types.
package backend

import "github.com/praetorian-inc/scanrt/pkg/types"

// MatchFunc receives one match. Returning false asks the backend to stop
// scanning, after which the scan call returns StatusScanTerminated.
type MatchFunc func(id uint32, from, to uint64, flags uint32) bool

// Backend compiles databases and allocates scratch for them.
type Backend interface {
	// Name identifies the backend ("portable", "hyperscan").
	Name() string

	// Version is the engine release, formatted as X.Y.Z.
	Version() string

	// ValidPlatform returns nil when the host CPU can run this backend.
	ValidPlatform() error

	// Compile builds a database for the given mode.
	Compile(patterns []*types.Pattern, mode types.Mode) (DB, error)

	// Unmarshal restores a database produced by DB.Marshal.
	Unmarshal(data []byte, mode types.Mode) (DB, error)

	// AllocScratch allocates scratch sized for db.
	AllocScratch(db DB) (Scratch, error)
}

// DB is a compiled, immutable pattern database.
type DB interface {
	Mode() types.Mode
	Size() (int, error)
	Info() (string, error)
	Marshal() ([]byte, error)

	// ScanBlock scans data as a single buffer. Block databases only.
	ScanBlock(data []byte, scratch Scratch, fn MatchFunc) error

	// ScanVector scans data as one logical input. Vectored databases only.
	ScanVector(data [][]byte, scratch Scratch, fn MatchFunc) error

	// OpenStream starts a new stream. Streaming databases only.
	OpenStream() (Stream, error)

	Close() error
}

// Scratch is per-scan working memory.
type Scratch interface {
	Size() (int, error)

	// Grow enlarges the scratch so it can also serve db.
	Grow(db DB) error

	Clone() (Scratch, error)
	Close() error
}

// Stream is the backend side of an open streaming session.
type Stream interface {
	// Scan feeds the next chunk of the stream.
	Scan(data []byte, scratch Scratch, fn MatchFunc) error

	// Close ends the stream. When fn is nil pending end-of-data matches are
	// discarded; scratch may then also be nil.
	Close(scratch Scratch, fn MatchFunc) error
}
