package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStores returns every store implementation available in this
// environment. PostgreSQL runs only when SCANRT_TEST_POSTGRES_URL is set.
func openStores(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{"memory": NewMemory()}

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	stores["sqlite"] = sqlite

	if dsn := os.Getenv("SCANRT_TEST_POSTGRES_URL"); dsn != "" {
		pg, err := NewPostgres(dsn)
		require.NoError(t, err)
		stores["postgres"] = pg
	}

	for _, s := range stores {
		t.Cleanup(func() { s.Close() })
	}
	return stores
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run := NewRun(types.ModeStreaming, "portable")
			require.NoError(t, s.AddRun(run))

			p := &types.Pattern{ID: 7, Name: "ipv4_address", Expression: `\d+\.\d+`, Flags: types.SomLeftMost}
			require.NoError(t, s.AddPattern(NewPatternRecord(run.ID, p)))
			require.NoError(t, s.AddPattern(NewPatternRecord(run.ID, p)), "idempotent")

			content := []byte("ip 10.0.0.1")
			in := &InputRecord{RunID: run.ID, ID: types.ComputeInputID(content), Name: "a.txt", Size: int64(len(content))}
			require.NoError(t, s.AddInput(in))

			for _, m := range []*Match{
				{RunID: run.ID, Input: "a.txt", InputID: in.ID, PatternID: 7, From: 3, To: 11, Snippet: []byte("10.0.0.1")},
				{RunID: run.ID, Input: "a.txt", InputID: in.ID, PatternID: 7, From: 3, To: 7, Snippet: []byte("10.0")},
				{RunID: run.ID, Input: "a.txt", InputID: in.ID, PatternID: 7, From: 3, To: 7, Snippet: []byte("10.0")},
			} {
				require.NoError(t, s.AddMatch(m))
			}

			finished := run.StartedAt.Add(time.Second)
			require.NoError(t, s.FinishRun(run.ID, finished, "completed"))

			runs, err := s.GetRuns()
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, run.ID, runs[0].ID)
			assert.Equal(t, types.ModeStreaming, runs[0].Mode)
			assert.Equal(t, "portable", runs[0].Backend)
			assert.Equal(t, "completed", runs[0].Outcome)
			assert.True(t, runs[0].StartedAt.Equal(run.StartedAt))
			assert.True(t, runs[0].FinishedAt.Equal(finished))

			patterns, err := s.GetPatterns(run.ID)
			require.NoError(t, err)
			require.Len(t, patterns, 1)
			assert.Equal(t, uint32(7), patterns[0].PatternID)
			assert.Equal(t, types.SomLeftMost, patterns[0].Flags)
			assert.Equal(t, p.ComputeStructuralID(), patterns[0].StructuralID)

			inputs, err := s.GetInputs(run.ID)
			require.NoError(t, err)
			require.Len(t, inputs, 1)
			assert.Equal(t, in.ID, inputs[0].ID)
			assert.Equal(t, int64(11), inputs[0].Size)

			matches, err := s.GetMatches(run.ID)
			require.NoError(t, err)
			require.Len(t, matches, 2, "duplicate matches are stored once")
			assert.Equal(t, uint64(7), matches[0].To, "ordered by end offset")
			assert.Equal(t, []byte("10.0"), matches[0].Snippet)
			assert.Equal(t, uint64(11), matches[1].To)

			scanned, err := s.InputScanned(in.ID)
			require.NoError(t, err)
			assert.True(t, scanned)
			scanned, err = s.InputScanned(types.ComputeInputID([]byte("other")))
			require.NoError(t, err)
			assert.False(t, scanned)
		})
	}
}

func TestStore_FinishUnknownRun(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.FinishRun("no-such-run", time.Now(), "completed"))
		})
	}
}

func TestStore_EmptyRun(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			matches, err := s.GetMatches("missing")
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	run := NewRun(types.ModeBlock, "portable")
	require.NoError(t, s.AddRun(run))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.GetRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	s, err := New(Config{Path: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	s.Close()
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", postgresDialect.rebind(q))
}

func TestMerge(t *testing.T) {
	a, b := NewMemory(), NewMemory()

	for i, s := range []Store{a, b} {
		run := NewRun(types.ModeBlock, "portable")
		run.StartedAt = time.Unix(int64(1000+i), 0).UTC()
		require.NoError(t, s.AddRun(run))
		require.NoError(t, s.AddPattern(&PatternRecord{RunID: run.ID, PatternID: 1, Name: "p"}))
		require.NoError(t, s.AddInput(&InputRecord{RunID: run.ID, Name: "f"}))
		require.NoError(t, s.AddMatch(&Match{RunID: run.ID, Input: "f", PatternID: 1, From: 0, To: 1}))
	}

	dst, err := NewSQLite(filepath.Join(t.TempDir(), "merged.db"))
	require.NoError(t, err)
	defer dst.Close()

	stats, err := Merge(dst, a, b)
	require.NoError(t, err)
	assert.Equal(t, &MergeStats{RunsMerged: 2, PatternsMerged: 2, InputsMerged: 2, MatchesMerged: 2, SourcesProcessed: 2}, stats)

	runs, err := dst.GetRuns()
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = Merge(dst)
	assert.Error(t, err)
}
