package scan

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockScan_SingleOccurrence(t *testing.T) {
	db, sc := blockDB(t, pat("test", 1))
	data := []byte("foo test bar")

	var events []types.MatchEvent
	out, err := db.Scan(data, sc, Collect(&events))

	require.NoError(t, err)
	assert.Equal(t, Completed, out)
	require.Len(t, events, 1)
	assert.Equal(t, ev(1, 4, 8), events[0])
	assert.Equal(t, "test", string(events[0].Slice(data)))
}

func TestBlockScan_Deterministic(t *testing.T) {
	db, sc := blockDB(t, pat("foo", 1), pat("o+", 2), pat(`\bbar\b`, 3))
	data := []byte("foo bar foobar bar")

	var first, second []types.MatchEvent
	_, err := db.Scan(data, sc, Collect(&first))
	require.NoError(t, err)
	_, err = db.Scan(data, sc, Collect(&second))
	require.NoError(t, err)

	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated scan differs (-first +second):\n%s", diff)
	}
}

func TestVectoredScan_SameOffsetsAsBlock(t *testing.T) {
	vdb, err := NewVectoredDatabase([]*types.Pattern{pat("test", 1)}, portableOpt())
	require.NoError(t, err)
	defer vdb.Close()
	vsc, err := AllocScratch(vdb)
	require.NoError(t, err)

	var vectored []types.MatchEvent
	out, err := vdb.Scan([][]byte{[]byte("foo "), []byte("test bar")}, vsc, Collect(&vectored))
	require.NoError(t, err)
	assert.Equal(t, Completed, out)

	bdb, bsc := blockDB(t, pat("test", 1))
	var block []types.MatchEvent
	_, err = bdb.Scan([]byte("foo test bar"), bsc, Collect(&block))
	require.NoError(t, err)

	assert.Equal(t, []types.MatchEvent{ev(1, 4, 8)}, vectored)
	assert.Equal(t, block, vectored)

	_, err = vdb.Scan(nil, vsc, Collect(&vectored))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTerminate_IsNotAnError(t *testing.T) {
	db, sc := blockDB(t, pat("a", 1))

	var got types.MatchEvent
	out, err := db.Scan([]byte("xaaa"), sc, First(&got))

	require.NoError(t, err)
	assert.Equal(t, Terminated, out)
	assert.Equal(t, ev(1, 1, 2), got)

	// Database and scratch remain usable.
	var events []types.MatchEvent
	out, err = db.Scan([]byte("xaaa"), sc, Collect(&events))
	require.NoError(t, err)
	assert.Equal(t, Completed, out)
	assert.Len(t, events, 3)
}

func TestScan_NilHandler(t *testing.T) {
	db, sc := blockDB(t, pat("a", 1))
	_, err := db.Scan([]byte("a"), sc, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestScan_HandlerPanicReleasesScratch(t *testing.T) {
	db, sc := blockDB(t, pat("a", 1))

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = db.Scan([]byte("a"), sc, func(uint32, uint64, uint64, uint32) Matching {
			panic("boom")
		})
	})

	var events []types.MatchEvent
	_, err := db.Scan([]byte("a"), sc, Collect(&events))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCompile_ReturnsModeType(t *testing.T) {
	for _, mode := range []types.Mode{types.ModeBlock, types.ModeVectored, types.ModeStreaming} {
		db, err := Compile(mode, []*types.Pattern{pat("a", 1)}, portableOpt())
		require.NoError(t, err)

		assert.Equal(t, mode, db.Mode())
		assert.Equal(t, mode == types.ModeBlock, db.IsBlock())
		assert.Equal(t, mode == types.ModeVectored, db.IsVectored())
		assert.Equal(t, mode == types.ModeStreaming, db.IsStreaming())
		assert.Equal(t, "portable", db.Backend())

		switch mode {
		case types.ModeBlock:
			assert.IsType(t, &BlockDatabase{}, db)
		case types.ModeVectored:
			assert.IsType(t, &VectoredDatabase{}, db)
		case types.ModeStreaming:
			assert.IsType(t, &StreamingDatabase{}, db)
		}
		require.NoError(t, db.Close())
	}

	_, err := Compile(types.Mode(42), []*types.Pattern{pat("a", 1)}, portableOpt())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCompile_Error(t *testing.T) {
	_, err := NewBlockDatabase([]*types.Pattern{pat("ok", 1), pat("(unclosed", 2)}, portableOpt())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompile)

	var ce *types.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Expression)

	_, err = NewBlockDatabase([]*types.Pattern{pat("ok", 1), nil}, portableOpt())
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Expression)
}

func TestDatabase_Introspection(t *testing.T) {
	db, _ := blockDB(t, pat("a", 1), pat("b", 2))

	size, err := db.Size()
	require.NoError(t, err)
	assert.Positive(t, size)

	info, err := db.Info()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info, "Version: "), info)
	assert.True(t, strings.HasSuffix(info, "Mode: BLOCK"), info)
}

func TestDatabase_CloseOnce(t *testing.T) {
	db, err := NewBlockDatabase([]*types.Pattern{pat("a", 1)}, portableOpt())
	require.NoError(t, err)
	sc, err := AllocScratch(db)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Close(), ErrInvalidState)

	_, err = db.Scan([]byte("a"), sc, Collect(new([]types.MatchEvent)))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = db.Info()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = AllocScratch(db)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUnmarshal_ModeMismatch(t *testing.T) {
	db, _ := blockDB(t, pat("test", 1))
	data, err := db.Marshal()
	require.NoError(t, err)

	_, err = UnmarshalStreamingDatabase(data, portableOpt())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModeMismatch)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, -7, e.Code)

	_, err = UnmarshalVectoredDatabase(data, portableOpt())
	assert.ErrorIs(t, err, ErrModeMismatch)

	restored, err := UnmarshalBlockDatabase(data, portableOpt())
	require.NoError(t, err)
	defer restored.Close()
	sc, err := AllocScratch(restored)
	require.NoError(t, err)
	var events []types.MatchEvent
	_, err = restored.Scan([]byte("foo test bar"), sc, Collect(&events))
	require.NoError(t, err)
	assert.Equal(t, []types.MatchEvent{ev(1, 4, 8)}, events)

	_, err = UnmarshalBlockDatabase(nil, portableOpt())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestScratch_Grow(t *testing.T) {
	small, sc := blockDB(t, pat("a", 1))
	large, _ := blockDB(t, pat("a", 1), pat("b", 2), pat("c", 3))

	_, err := large.Scan([]byte("abc"), sc, Collect(new([]types.MatchEvent)))
	assert.ErrorIs(t, err, ErrInvalidArgument, "scratch was not sized for the larger database")

	before, err := sc.Size()
	require.NoError(t, err)
	require.NoError(t, sc.Grow(large))
	after, err := sc.Size()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after, before)

	var events []types.MatchEvent
	_, err = large.Scan([]byte("abc"), sc, Collect(&events))
	require.NoError(t, err)
	assert.Len(t, events, 3)

	_, err = small.Scan([]byte("abc"), sc, Collect(new([]types.MatchEvent)))
	require.NoError(t, err)
}

func TestScratch_InUse(t *testing.T) {
	db, sc := blockDB(t, pat("a", 1))

	var inner error
	_, err := db.Scan([]byte("a"), sc, func(uint32, uint64, uint64, uint32) Matching {
		_, inner = db.Scan([]byte("a"), sc, Collect(new([]types.MatchEvent)))
		return Continue
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrScratchInUse)
	assert.True(t, IsKind(inner, KindScratchInUse))
}

func TestScratch_Close(t *testing.T) {
	db, sc := blockDB(t, pat("a", 1))

	require.NoError(t, sc.Close())
	assert.ErrorIs(t, sc.Close(), ErrInvalidState)
	_, err := sc.Clone()
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = db.Scan([]byte("a"), sc, Collect(new([]types.MatchEvent)))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = db.Scan([]byte("a"), nil, Collect(new([]types.MatchEvent)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestScratch_WrongBackend(t *testing.T) {
	db, _ := blockDB(t, pat("a", 1))
	other, err := NewBlockDatabase([]*types.Pattern{pat("a", 1)}, WithBackend(&fakeBackend{name: t.Name()}))
	require.NoError(t, err)
	sc, err := AllocScratch(other)
	require.NoError(t, err)

	_, err = db.Scan([]byte("a"), sc, Collect(new([]types.MatchEvent)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestScratch_ConcurrentClones(t *testing.T) {
	db, sc := blockDB(t, pat(`a+b`, 1), pat(`\d{3}`, 2), pat(`b\s`, 3))
	data := []byte(strings.Repeat("xaab 123 ab 4567 ", 500))

	var baseline []types.MatchEvent
	_, err := db.Scan(data, sc, Collect(&baseline))
	require.NoError(t, err)
	require.NotEmpty(t, baseline)

	results := make([][]types.MatchEvent, 8)
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range results {
		clone, err := sc.Clone()
		require.NoError(t, err)
		wg.Add(1)
		go func(i int, s *Scratch) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				var events []types.MatchEvent
				if _, errs[i] = db.Scan(data, s, Collect(&events)); errs[i] != nil {
					return
				}
				results[i] = events
			}
		}(i, clone)
	}

	// The original keeps scanning alongside its clones.
	var original []types.MatchEvent
	_, err = db.Scan(data, sc, Collect(&original))
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, baseline, original)
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, baseline, results[i], "clone %d", i)
	}
}

func TestScratchPool(t *testing.T) {
	db, _ := blockDB(t, pat("a", 1))
	pool, err := NewScratchPool(db)
	require.NoError(t, err)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc, err := pool.Get()
			if !assert.NoError(t, err) {
				return
			}
			defer pool.Put(sc)
			var events []types.MatchEvent
			_, err = db.Scan([]byte("aaa"), sc, Collect(&events))
			assert.NoError(t, err)
			assert.Len(t, events, 3)
		}()
	}
	wg.Wait()

	large, _ := blockDB(t, pat("a", 1), pat("b", 2))
	stale, err := pool.Get()
	require.NoError(t, err)
	require.NoError(t, pool.Grow(large))
	pool.Put(stale)

	sc, err := pool.Get()
	require.NoError(t, err)
	var events []types.MatchEvent
	_, err = large.Scan([]byte("ab"), sc, Collect(&events))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestValidPlatform_CheckedOnce(t *testing.T) {
	fb := &fakeBackend{name: t.Name(), platform: errors.New("no SSSE3")}

	_, err := NewBlockDatabase([]*types.Pattern{pat("a", 1)}, WithBackend(fb))
	assert.ErrorIs(t, err, ErrUnsupportedArchitecture)
	_, err = NewStreamingDatabase([]*types.Pattern{pat("a", 1)}, WithBackend(fb))
	assert.ErrorIs(t, err, ErrUnsupportedArchitecture)

	assert.Equal(t, int32(1), fb.platformCalls.Load())
}
