//go:build cgo && hyperscan

// Package hyperscan is the native scanning backend, backed by Intel
// Hyperscan or Vectorscan through github.com/flier/gohs.
//
// Build with: go build -tags hyperscan (CGO_ENABLED=1, libhs installed).
package hyperscan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/flier/gohs/hyperscan"
	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// Backend implements backend.Backend on libhs.
type Backend struct{}

var _ backend.Backend = (*Backend)(nil)

// New creates a Hyperscan backend.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Name() string { return "hyperscan" }

// Version returns the libhs release, e.g. "5.4.2".
func (b *Backend) Version() string {
	v := hyperscan.Version()
	if i := strings.IndexByte(v, ' '); i > 0 {
		v = v[:i]
	}
	return v
}

func (b *Backend) ValidPlatform() error {
	return statusOf(hyperscan.ValidPlatform())
}

func modeFlag(mode types.Mode) (hyperscan.ModeFlag, error) {
	switch mode {
	case types.ModeBlock:
		return hyperscan.BlockMode, nil
	case types.ModeVectored:
		return hyperscan.VectoredMode, nil
	case types.ModeStreaming:
		return hyperscan.StreamMode, nil
	default:
		return 0, backend.StatusInvalid
	}
}

// Compile builds a database with DatabaseBuilder. Pattern flags share their
// numeric values with hyperscan.CompileFlag.
func (b *Backend) Compile(patterns []*types.Pattern, mode types.Mode) (backend.DB, error) {
	flag, err := modeFlag(mode)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, &types.CompileError{Message: "no patterns provided", Expression: -1}
	}

	hsPatterns := make([]*hyperscan.Pattern, len(patterns))
	for i, p := range patterns {
		if p == nil {
			return nil, &types.CompileError{Message: "pattern is nil", Expression: i}
		}
		hp := hyperscan.NewPattern(p.Expression, hyperscan.CompileFlag(p.Flags))
		hp.Id = int(p.ID)
		hsPatterns[i] = hp
	}

	builder := &hyperscan.DatabaseBuilder{
		Patterns: hsPatterns,
		Mode:     flag,
		Platform: hyperscan.PopulatePlatform(),
	}
	db, err := builder.Build()
	if err != nil {
		if st, ok := lookupStatus(err); ok && st != backend.StatusCompilerError {
			return nil, st
		}
		return nil, &types.CompileError{Message: err.Error(), Expression: -1}
	}
	return &database{db: db, mode: mode}, nil
}

// Unmarshal restores a serialized database. libhs checks version, platform
// and mode.
func (b *Backend) Unmarshal(data []byte, mode types.Mode) (backend.DB, error) {
	var (
		db  hyperscan.Database
		err error
	)
	switch mode {
	case types.ModeBlock:
		db, err = hyperscan.UnmarshalBlockDatabase(data)
	case types.ModeVectored:
		db, err = hyperscan.UnmarshalVectoredDatabase(data)
	case types.ModeStreaming:
		db, err = hyperscan.UnmarshalStreamDatabase(data)
	default:
		return nil, backend.StatusInvalid
	}
	if err != nil {
		return nil, statusOf(err)
	}

	// Deserialization does not look at the mode; libhs would only reject
	// it at scan time.
	info, err := db.Info()
	if err != nil {
		db.Close()
		return nil, statusOf(err)
	}
	if m := infoMode.FindStringSubmatch(fmt.Sprint(info)); m != nil && m[1] != mode.String() {
		db.Close()
		return nil, backend.StatusDBMode
	}
	return &database{db: db, mode: mode}, nil
}

var infoMode = regexp.MustCompile(`Mode:\s(\w+)`)

func (b *Backend) AllocScratch(db backend.DB) (backend.Scratch, error) {
	d, ok := db.(*database)
	if !ok {
		return nil, backend.StatusInvalid
	}
	s, err := hyperscan.NewScratch(d.db)
	if err != nil {
		return nil, statusOf(err)
	}
	return &scratch{s: s}, nil
}

var statusErrors = []struct {
	err    error
	status backend.Status
}{
	{hyperscan.ErrInvalid, backend.StatusInvalid},
	{hyperscan.ErrNoMemory, backend.StatusNoMem},
	{hyperscan.ErrScanTerminated, backend.StatusScanTerminated},
	{hyperscan.ErrCompileError, backend.StatusCompilerError},
	{hyperscan.ErrDatabaseVersionError, backend.StatusDBVersion},
	{hyperscan.ErrDatabasePlatformError, backend.StatusDBPlatform},
	{hyperscan.ErrDatabaseModeError, backend.StatusDBMode},
	{hyperscan.ErrBadAlign, backend.StatusBadAlign},
	{hyperscan.ErrBadAlloc, backend.StatusBadAlloc},
	{hyperscan.ErrScratchInUse, backend.StatusScratchInUse},
	{hyperscan.ErrArchError, backend.StatusArchError},
}

func lookupStatus(err error) (backend.Status, bool) {
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return se.status, true
		}
	}
	return 0, false
}

// statusOf translates a gohs error into a backend status. Errors without a
// status are wrapped unchanged.
func statusOf(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := lookupStatus(err); ok {
		return st
	}
	return fmt.Errorf("hyperscan: %w", err)
}
