package store

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/praetorian-inc/scanrt/pkg/types"
)

type matchKey struct {
	run, input string
	pattern    uint32
	from, to   uint64
}

// MemoryStore implements Store with in-memory maps. Nothing survives Close.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	patterns map[string]map[uint32]*PatternRecord // run -> pattern ID
	inputs   map[string]map[string]*InputRecord   // run -> input name
	matches  map[matchKey]*Match
	scanned  map[types.InputID]bool
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:     make(map[string]*Run),
		patterns: make(map[string]map[uint32]*PatternRecord),
		inputs:   make(map[string]map[string]*InputRecord),
		matches:  make(map[matchKey]*Match),
		scanned:  make(map[types.InputID]bool),
	}
}

// AddRun creates or replaces the run record.
func (m *MemoryStore) AddRun(r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *r
	m.runs[r.ID] = &c
	return nil
}

// FinishRun records the end of a run.
func (m *MemoryStore) FinishRun(runID string, finishedAt time.Time, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("unknown run %s", runID)
	}
	r.FinishedAt, r.Outcome = finishedAt.UTC(), outcome
	return nil
}

// AddPattern stores a pattern of a run.
func (m *MemoryStore) AddPattern(p *PatternRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := m.patterns[p.RunID]
	if byID == nil {
		byID = make(map[uint32]*PatternRecord)
		m.patterns[p.RunID] = byID
	}
	if _, exists := byID[p.PatternID]; !exists {
		c := *p
		byID[p.PatternID] = &c
	}
	return nil
}

// AddInput stores a scanned input.
func (m *MemoryStore) AddInput(in *InputRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName := m.inputs[in.RunID]
	if byName == nil {
		byName = make(map[string]*InputRecord)
		m.inputs[in.RunID] = byName
	}
	if _, exists := byName[in.Name]; !exists {
		c := *in
		byName[in.Name] = &c
		m.scanned[in.ID] = true
	}
	return nil
}

// AddMatch stores a match record.
func (m *MemoryStore) AddMatch(match *Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := matchKey{match.RunID, match.Input, match.PatternID, match.From, match.To}
	if _, exists := m.matches[key]; !exists {
		c := *match
		c.Snippet = slices.Clone(match.Snippet)
		m.matches[key] = &c
	}
	return nil
}

// GetRuns returns all runs, oldest first.
func (m *MemoryStore) GetRuns() ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		c := *r
		runs = append(runs, &c)
	}
	slices.SortFunc(runs, func(a, b *Run) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return runs, nil
}

// GetPatterns returns a run's patterns ordered by ID.
func (m *MemoryStore) GetPatterns(runID string) ([]*PatternRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*PatternRecord
	for _, p := range m.patterns[runID] {
		c := *p
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *PatternRecord) int { return cmp.Compare(a.PatternID, b.PatternID) })
	return out, nil
}

// GetInputs returns a run's inputs ordered by name.
func (m *MemoryStore) GetInputs(runID string) ([]*InputRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*InputRecord
	for _, in := range m.inputs[runID] {
		c := *in
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *InputRecord) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// GetMatches returns a run's matches in delivery order per input.
func (m *MemoryStore) GetMatches(runID string) ([]*Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Match
	for key, match := range m.matches {
		if key.run != runID {
			continue
		}
		c := *match
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *Match) int {
		return cmp.Or(
			cmp.Compare(a.Input, b.Input),
			cmp.Compare(a.To, b.To),
			cmp.Compare(a.PatternID, b.PatternID),
			cmp.Compare(a.From, b.From),
		)
	})
	return out, nil
}

// InputScanned reports whether any run stored an input with this ID.
func (m *MemoryStore) InputScanned(id types.InputID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanned[id], nil
}

// Close is a no-op for in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
