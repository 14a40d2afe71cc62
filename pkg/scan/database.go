// Package scan is the scanning runtime. It drives a compiled pattern
// database over a single buffer (BlockDatabase), an ordered list of buffers
// (VectoredDatabase) or an open-ended stream (StreamingDatabase), reports
// matches to a MatchHandler and translates backend status codes into *Error.
//
// A database is immutable and may be shared by concurrent scans; each
// concurrent scan needs its own Scratch (see Scratch.Clone and ScratchPool).
package scan

import (
	"errors"
	"sync"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// Database is the mode-independent view of a compiled database.
type Database interface {
	Mode() types.Mode
	IsBlock() bool
	IsVectored() bool
	IsStreaming() bool

	// Size returns the compiled size in bytes.
	Size() (int, error)
	// Info describes the database, e.g.
	// "Version: 5.4.2 Features: AVX2 Mode: BLOCK".
	Info() (string, error)
	// Marshal serializes the database for Unmarshal*Database.
	Marshal() ([]byte, error)
	// Backend names the engine that compiled the database.
	Backend() string
	// Close releases the database. It must be called exactly once, after
	// every stream opened on it is closed and every call has returned.
	Close() error

	core() *database
}

// database is shared by the three mode-specific types.
type database struct {
	cfg     *config
	db      backend.DB
	mode    types.Mode
	metrics *metrics

	mu     sync.Mutex
	refs   int // calls in flight plus open streams
	closed bool
}

// BlockDatabase scans one contiguous buffer per call.
type BlockDatabase struct{ *database }

// VectoredDatabase scans an ordered list of buffers as one logical input.
type VectoredDatabase struct{ *database }

// StreamingDatabase scans streams opened with Open.
type StreamingDatabase struct{ *database }

// NewBlockDatabase compiles patterns for block scanning.
func NewBlockDatabase(patterns []*types.Pattern, opts ...Option) (*BlockDatabase, error) {
	d, err := compile(types.ModeBlock, patterns, opts)
	if err != nil {
		return nil, err
	}
	return &BlockDatabase{d}, nil
}

// NewVectoredDatabase compiles patterns for vectored scanning.
func NewVectoredDatabase(patterns []*types.Pattern, opts ...Option) (*VectoredDatabase, error) {
	d, err := compile(types.ModeVectored, patterns, opts)
	if err != nil {
		return nil, err
	}
	return &VectoredDatabase{d}, nil
}

// NewStreamingDatabase compiles patterns for streaming.
func NewStreamingDatabase(patterns []*types.Pattern, opts ...Option) (*StreamingDatabase, error) {
	d, err := compile(types.ModeStreaming, patterns, opts)
	if err != nil {
		return nil, err
	}
	return &StreamingDatabase{d}, nil
}

// Compile compiles patterns for mode and returns the matching concrete type
// (*BlockDatabase, *VectoredDatabase or *StreamingDatabase).
func Compile(mode types.Mode, patterns []*types.Pattern, opts ...Option) (Database, error) {
	d, err := compile(mode, patterns, opts)
	if err != nil {
		return nil, err
	}
	return wrap(d), nil
}

// UnmarshalBlockDatabase restores a serialized block database.
func UnmarshalBlockDatabase(data []byte, opts ...Option) (*BlockDatabase, error) {
	d, err := unmarshal(types.ModeBlock, data, opts)
	if err != nil {
		return nil, err
	}
	return &BlockDatabase{d}, nil
}

// UnmarshalVectoredDatabase restores a serialized vectored database.
func UnmarshalVectoredDatabase(data []byte, opts ...Option) (*VectoredDatabase, error) {
	d, err := unmarshal(types.ModeVectored, data, opts)
	if err != nil {
		return nil, err
	}
	return &VectoredDatabase{d}, nil
}

// UnmarshalStreamingDatabase restores a serialized streaming database.
func UnmarshalStreamingDatabase(data []byte, opts ...Option) (*StreamingDatabase, error) {
	d, err := unmarshal(types.ModeStreaming, data, opts)
	if err != nil {
		return nil, err
	}
	return &StreamingDatabase{d}, nil
}

func wrap(d *database) Database {
	switch d.mode {
	case types.ModeBlock:
		return &BlockDatabase{d}
	case types.ModeVectored:
		return &VectoredDatabase{d}
	default:
		return &StreamingDatabase{d}
	}
}

func compile(mode types.Mode, patterns []*types.Pattern, opts []Option) (*database, error) {
	const op = "compile"
	if !mode.Valid() {
		return nil, newError(op, KindInvalidArgument, "unknown mode %d", int(mode))
	}
	cfg := newConfig(opts)
	if err := ValidPlatform(cfg.backend); err != nil {
		return nil, err
	}
	for i, p := range patterns {
		if err := p.Validate(); err != nil {
			return nil, &Error{Op: op, Kind: KindCompile, Code: int(backend.StatusCompilerError),
				Err: &types.CompileError{Message: err.Error(), Expression: i}}
		}
	}

	db, err := cfg.backend.Compile(patterns, mode)
	if err != nil {
		return nil, translate(op, err)
	}
	d, err := newDatabase(cfg, db, mode)
	if err != nil {
		return nil, err
	}
	cfg.logger.Debug("compiled database",
		"backend", cfg.backend.Name(), "mode", mode, "patterns", len(patterns))
	return d, nil
}

func unmarshal(mode types.Mode, data []byte, opts []Option) (*database, error) {
	const op = "unmarshal database"
	cfg := newConfig(opts)
	if err := ValidPlatform(cfg.backend); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, newError(op, KindInvalidArgument, "empty input")
	}
	db, err := cfg.backend.Unmarshal(data, mode)
	if err != nil {
		return nil, translate(op, err)
	}
	return newDatabase(cfg, db, mode)
}

func newDatabase(cfg *config, db backend.DB, mode types.Mode) (*database, error) {
	if db.Mode() != mode {
		db.Close()
		return nil, &Error{Op: "compile", Kind: KindModeMismatch, Code: int(backend.StatusDBMode)}
	}
	m, err := newMetrics(cfg.meterProvider)
	if err != nil {
		db.Close()
		return nil, newError("compile", KindUnknown, "metrics: %v", err)
	}
	return &database{cfg: cfg, db: db, mode: mode, metrics: m}, nil
}

func (d *database) core() *database { return d }

func (d *database) Mode() types.Mode  { return d.mode }
func (d *database) IsBlock() bool     { return d.mode == types.ModeBlock }
func (d *database) IsVectored() bool  { return d.mode == types.ModeVectored }
func (d *database) IsStreaming() bool { return d.mode == types.ModeStreaming }
func (d *database) Backend() string   { return d.cfg.backend.Name() }

func (d *database) Size() (int, error) {
	leave, err := d.enter("database size")
	if err != nil {
		return 0, err
	}
	defer leave()
	n, err := d.db.Size()
	return n, translate("database size", err)
}

func (d *database) Info() (string, error) {
	leave, err := d.enter("database info")
	if err != nil {
		return "", err
	}
	defer leave()
	s, err := d.db.Info()
	return s, translate("database info", err)
}

func (d *database) Marshal() ([]byte, error) {
	leave, err := d.enter("marshal database")
	if err != nil {
		return nil, err
	}
	defer leave()
	b, err := d.db.Marshal()
	return b, translate("marshal database", err)
}

// Close frees the backend database. It reports KindInvalidState, and keeps
// the database, while streams are open or calls are in flight, and on every
// call after the first successful one.
func (d *database) Close() error {
	const op = "close database"
	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		return newError(op, KindInvalidState, "database already closed")
	case d.refs > 0:
		n := d.refs
		d.mu.Unlock()
		return newError(op, KindInvalidState, "%d streams or calls still use the database", n)
	}
	d.closed = true
	d.mu.Unlock()

	if err := d.db.Close(); err != nil {
		return translate(op, err)
	}
	return nil
}

// enter holds the database open until the returned func is called.
func (d *database) enter(op string) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, newError(op, KindInvalidState, "database is closed")
	}
	d.refs++
	var once sync.Once
	return func() { once.Do(d.leave) }, nil
}

func (d *database) leave() {
	d.mu.Lock()
	d.refs--
	d.mu.Unlock()
}

// run performs one backend call with scratch held exclusively and the
// handler bridged, and records metrics.
func (d *database) run(op string, sc *Scratch, h MatchHandler, size int64,
	fn func(backend.Scratch, backend.MatchFunc) error) (Outcome, error) {
	leave, err := d.enter(op)
	if err != nil {
		return Completed, err
	}
	defer leave()
	if h == nil {
		return Completed, newError(op, KindInvalidArgument, "nil match handler")
	}
	release, err := sc.acquire(op, d)
	if err != nil {
		return Completed, err
	}
	defer release()

	c := &call{h: h}
	berr := fn(sc.s, c.match)
	c.rethrow()

	return d.finish(op, size, c.matches, berr)
}

func (d *database) finish(op string, size, matches int64, berr error) (Outcome, error) {
	outcome := Completed
	var err error
	switch {
	case berr == nil:
	case errors.Is(berr, backend.StatusScanTerminated):
		outcome = Terminated
	default:
		err = translate(op, berr)
	}
	d.metrics.record(op, d.mode.String(), d.cfg.backend.Name(), size, matches, outcome, err)
	if err != nil {
		d.cfg.logger.Debug("scan failed", "op", op, "error", err)
	}
	return outcome, err
}
