package scan

import (
	"sync/atomic"
	"testing"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/backend/portable"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/require"
)

// pat builds a pattern with exact start offsets on every backend.
func pat(expr string, id uint32) *types.Pattern {
	return types.NewPattern(expr, types.SomLeftMost, id)
}

func ev(id uint32, from, to uint64) types.MatchEvent {
	return types.MatchEvent{ID: id, From: from, To: to}
}

func portableOpt() Option {
	return WithBackend(portable.New())
}

func blockDB(t *testing.T, patterns ...*types.Pattern) (*BlockDatabase, *Scratch) {
	t.Helper()
	db, err := NewBlockDatabase(patterns, portableOpt())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sc, err := AllocScratch(db)
	require.NoError(t, err)
	return db, sc
}

func streamDB(t *testing.T, patterns ...*types.Pattern) (*StreamingDatabase, *Scratch) {
	t.Helper()
	db, err := NewStreamingDatabase(patterns, portableOpt())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sc, err := AllocScratch(db)
	require.NoError(t, err)
	return db, sc
}

// fakeBackend returns fixed results so status translation can be observed.
type fakeBackend struct {
	name          string
	platform      error
	platformCalls atomic.Int32
	scanErr       error
}

func (f *fakeBackend) Name() string    { return f.name }
func (f *fakeBackend) Version() string { return "0.0.0" }

func (f *fakeBackend) ValidPlatform() error {
	f.platformCalls.Add(1)
	return f.platform
}

func (f *fakeBackend) Compile(patterns []*types.Pattern, mode types.Mode) (backend.DB, error) {
	return &fakeDB{be: f, mode: mode}, nil
}

func (f *fakeBackend) Unmarshal(data []byte, mode types.Mode) (backend.DB, error) {
	return nil, backend.StatusDBVersion
}

func (f *fakeBackend) AllocScratch(db backend.DB) (backend.Scratch, error) {
	return &fakeScratch{}, nil
}

type fakeDB struct {
	be   *fakeBackend
	mode types.Mode
}

func (d *fakeDB) Mode() types.Mode         { return d.mode }
func (d *fakeDB) Size() (int, error)       { return 1, nil }
func (d *fakeDB) Info() (string, error)    { return "fake", nil }
func (d *fakeDB) Marshal() ([]byte, error) { return []byte("fake"), nil }
func (d *fakeDB) Close() error             { return nil }

func (d *fakeDB) ScanBlock(data []byte, sc backend.Scratch, fn backend.MatchFunc) error {
	return d.be.scanErr
}

func (d *fakeDB) ScanVector(data [][]byte, sc backend.Scratch, fn backend.MatchFunc) error {
	return d.be.scanErr
}

func (d *fakeDB) OpenStream() (backend.Stream, error) {
	return nil, backend.StatusNoMem
}

type fakeScratch struct{}

func (s *fakeScratch) Size() (int, error)              { return 1, nil }
func (s *fakeScratch) Grow(db backend.DB) error        { return nil }
func (s *fakeScratch) Clone() (backend.Scratch, error) { return &fakeScratch{}, nil }
func (s *fakeScratch) Close() error                    { return nil }
