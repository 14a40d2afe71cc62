package main

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStream_AcrossChunks(t *testing.T) {
	resetFlags(t)
	content := strings.Repeat("a", 1000) + "secret42" + strings.Repeat("b", 37) + "tok_abcd"
	dir := writeInputs(t, map[string]string{"big.txt": content})
	cmd, out, errOut := newTestCmd()

	require.NoError(t, runStream(cmd, []string{dir}))

	got := decodeFindings(t, out.Bytes())
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(dir, "big.txt"), got[0].Input)
	assert.Equal(t, uint64(1000), got[0].From)
	assert.Equal(t, uint64(1008), got[0].To)
	assert.Equal(t, "secret42", got[0].Snippet)
	assert.Equal(t, "tok_abcd", got[1].Snippet)

	// The streamed digest equals the digest of the whole buffer.
	assert.Equal(t, types.ComputeInputID([]byte(content)).Hex(), got[0].InputID)
	assert.Contains(t, errOut.String(), "in stream mode")
}

func TestRunStream_MaxMatchesStillDigestsInput(t *testing.T) {
	resetFlags(t)
	scanMaxMatches = 1
	content := "secret11 " + strings.Repeat("x", 100) + " secret22"
	dir := writeInputs(t, map[string]string{"a.txt": content})
	cmd, out, _ := newTestCmd()

	require.NoError(t, runStream(cmd, []string{dir}))

	got := decodeFindings(t, out.Bytes())
	require.Len(t, got, 1)
	assert.Equal(t, types.ComputeInputID([]byte(content)).Hex(), got[0].InputID)
}

func TestTail(t *testing.T) {
	snippetBytes = 128
	data := []byte("0123456789abcdefghij")
	tl := newTail(bytes.NewReader(data), 8)

	buf := make([]byte, 6)
	_, err := tl.Read(buf) // "012345"
	require.NoError(t, err)
	assert.Equal(t, []byte("123"), tl.snippet(1, 4))

	_, err = tl.Read(buf) // "6789ab", window "456789ab"
	require.NoError(t, err)
	assert.Nil(t, tl.snippet(1, 4))
	assert.Equal(t, []byte("89ab"), tl.snippet(8, 12))
	assert.Nil(t, tl.snippet(8, 13))

	big := make([]byte, 20)
	_, err = tl.Read(big) // the remaining 8 bytes replace the window
	require.NoError(t, err)
	assert.Equal(t, uint64(20), tl.total())
	assert.Equal(t, []byte("cdefghij"), tl.snippet(12, 20))

	_, err = tl.Read(big)
	assert.ErrorIs(t, err, io.EOF)

	// A single read longer than the window keeps its last bytes.
	tl = newTail(bytes.NewReader(data), 8)
	n, err := tl.Read(big)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, uint64(20), tl.total())
	assert.Equal(t, []byte("cdef"), tl.snippet(12, 16))
	assert.Nil(t, tl.snippet(11, 16))
}
