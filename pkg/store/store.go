// Package store persists scan runs: the patterns a run compiled, the inputs
// it scanned and the match events it reported.
package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// Run is one invocation of a scan command.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Mode       types.Mode
	Backend    string
	Outcome    string // "completed", "terminated" or an error summary
}

// NewRun starts a run record with a fresh ID.
func NewRun(mode types.Mode, backend string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Mode:      mode,
		Backend:   backend,
	}
}

// PatternRecord is a pattern as compiled by a run.
type PatternRecord struct {
	RunID        string
	PatternID    uint32
	Name         string
	Expression   string
	Flags        types.CompileFlag
	StructuralID string
}

// NewPatternRecord captures p for run.
func NewPatternRecord(runID string, p *types.Pattern) *PatternRecord {
	return &PatternRecord{
		RunID:        runID,
		PatternID:    p.ID,
		Name:         p.Name,
		Expression:   p.Expression,
		Flags:        p.Flags,
		StructuralID: p.ComputeStructuralID(),
	}
}

// InputRecord is one scanned input. ID is zero when the input length was not
// known up front.
type InputRecord struct {
	RunID string
	ID    types.InputID
	Name  string
	Size  int64
}

// Match is one match event with the input it was found in.
type Match struct {
	RunID     string
	Input     string
	InputID   types.InputID
	PatternID uint32
	From      uint64
	To        uint64
	Snippet   []byte // matched bytes, possibly truncated
}

// Store provides persistence for scan results. Adds are idempotent.
type Store interface {
	// AddRun creates or replaces the run record.
	AddRun(r *Run) error

	// FinishRun records the end time and outcome of a run.
	FinishRun(runID string, finishedAt time.Time, outcome string) error

	// AddPattern stores a pattern of a run.
	AddPattern(p *PatternRecord) error

	// AddInput stores a scanned input.
	AddInput(in *InputRecord) error

	// AddMatch stores a match record.
	AddMatch(m *Match) error

	// GetRuns returns all runs, oldest first.
	GetRuns() ([]*Run, error)

	// GetPatterns returns a run's patterns ordered by ID.
	GetPatterns(runID string) ([]*PatternRecord, error)

	// GetInputs returns a run's inputs ordered by name.
	GetInputs(runID string) ([]*InputRecord, error)

	// GetMatches returns a run's matches ordered by input, then in
	// delivery order (end offset, pattern ID, start offset).
	GetMatches(runID string) ([]*Match, error)

	// InputScanned reports whether any run scanned content with this ID.
	InputScanned(id types.InputID) (bool, error)

	// Close closes the underlying connection.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is a SQLite file path, ":memory:" for an in-memory store, or a
	// postgres:// or postgresql:// URL.
	Path string
}

// New opens the store Path selects.
func New(cfg Config) (Store, error) {
	switch {
	case cfg.Path == "":
		return nil, fmt.Errorf("path is required")
	case cfg.Path == ":memory:":
		return NewMemory(), nil
	case strings.HasPrefix(cfg.Path, "postgres://"), strings.HasPrefix(cfg.Path, "postgresql://"):
		return NewPostgres(cfg.Path)
	default:
		return NewSQLite(cfg.Path)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
