package scan

import (
	"errors"
	"testing"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTranslation(t *testing.T) {
	tests := []struct {
		status backend.Status
		kind   Kind
		target error
	}{
		{backend.StatusInvalid, KindInvalidArgument, ErrInvalidArgument},
		{backend.StatusBadAlign, KindInvalidArgument, ErrInvalidArgument},
		{backend.StatusNoMem, KindAllocationFailure, ErrAllocationFailure},
		{backend.StatusBadAlloc, KindAllocationFailure, ErrAllocationFailure},
		{backend.StatusDBVersion, KindVersionOrPlatformMismatch, ErrVersionOrPlatformMismatch},
		{backend.StatusDBPlatform, KindVersionOrPlatformMismatch, ErrVersionOrPlatformMismatch},
		{backend.StatusDBMode, KindModeMismatch, ErrModeMismatch},
		{backend.StatusScratchInUse, KindScratchInUse, ErrScratchInUse},
		{backend.StatusArchError, KindUnsupportedArchitecture, ErrUnsupportedArchitecture},
		{backend.StatusCompilerError, KindCompile, ErrCompile},
		{backend.Status(-99), KindUnknown, ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.status.Error(), func(t *testing.T) {
			fb := &fakeBackend{name: t.Name(), scanErr: tt.status}
			db, err := NewBlockDatabase([]*types.Pattern{pat("a", 1)}, WithBackend(fb))
			require.NoError(t, err)
			sc, err := AllocScratch(db)
			require.NoError(t, err)

			out, err := db.Scan([]byte("a"), sc, Collect(new([]types.MatchEvent)))
			require.Error(t, err)
			assert.Equal(t, Completed, out)
			assert.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, tt.status)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, int(tt.status), e.Code, "code passes through untranslated")
			assert.Equal(t, "block scan", e.Op)
		})
	}
}

func TestScanTerminatedStatusIsOutcome(t *testing.T) {
	fb := &fakeBackend{name: t.Name(), scanErr: backend.StatusScanTerminated}
	db, err := NewBlockDatabase([]*types.Pattern{pat("a", 1)}, WithBackend(fb))
	require.NoError(t, err)
	sc, err := AllocScratch(db)
	require.NoError(t, err)

	out, err := db.Scan([]byte("a"), sc, Collect(new([]types.MatchEvent)))
	require.NoError(t, err)
	assert.Equal(t, Terminated, out)
}

func TestBackendOpenFailure(t *testing.T) {
	fb := &fakeBackend{name: t.Name()}
	db, err := NewStreamingDatabase([]*types.Pattern{pat("a", 1)}, WithBackend(fb))
	require.NoError(t, err)

	_, err = db.Open()
	assert.ErrorIs(t, err, ErrAllocationFailure)

	_, err = UnmarshalBlockDatabase([]byte("x"), WithBackend(fb))
	assert.ErrorIs(t, err, ErrVersionOrPlatformMismatch)
}

func TestError_Message(t *testing.T) {
	err := &Error{Op: "block scan", Kind: KindModeMismatch, Code: -7, Err: backend.StatusDBMode}
	assert.Equal(t, "block scan: database mode mismatch: database built for a different mode (code -7)", err.Error())

	err = newError("stream scan", KindInvalidState, "stream is closed")
	assert.Equal(t, "stream scan: invalid state: stream is closed", err.Error())

	err = &Error{Op: "compile", Kind: KindInvalidArgument}
	assert.Equal(t, "compile: invalid argument", err.Error())
}

func TestTranslate_UnknownError(t *testing.T) {
	cause := errors.New("library exploded")
	err := translate("open stream", cause)

	assert.ErrorIs(t, err, ErrUnknown)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, KindUnknown))
	assert.Nil(t, translate("noop", nil))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "terminated", Terminated.String())
	assert.Equal(t, "unknown", Outcome(7).String())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "scratch in use", KindScratchInUse.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
