package main

import (
	"path/filepath"
	"testing"

	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVScan_MatchSpansFields(t *testing.T) {
	resetFlags(t)
	dir := writeInputs(t, map[string]string{
		"rows.csv": "x,secr,et42\nclean,row\ntok_,abcd\n",
	})
	cmd, out, errOut := newTestCmd()

	require.NoError(t, runVScan(cmd, []string{dir}))

	got := decodeFindings(t, out.Bytes())
	require.Len(t, got, 2)
	csv := filepath.Join(dir, "rows.csv")

	assert.Equal(t, csv+":1", got[0].Input)
	assert.Equal(t, "secret_word", got[0].Pattern)
	assert.Equal(t, uint64(1), got[0].From)
	assert.Equal(t, uint64(9), got[0].To)
	assert.Equal(t, "secret42", got[0].Snippet)

	assert.Equal(t, csv+":3", got[1].Input)
	assert.Equal(t, "tok_abcd", got[1].Snippet)

	assert.Contains(t, errOut.String(), "Scanned 3 inputs in vectored mode")
}

func TestRunVScan_HeaderAndDelimiter(t *testing.T) {
	resetFlags(t)
	vscanHeader = true
	vscanDelimiter = ";"
	dir := writeInputs(t, map[string]string{
		"rows.csv": "secret10;header\nsecret20;x\n",
	})
	cmd, out, _ := newTestCmd()

	require.NoError(t, runVScan(cmd, []string{dir}))

	got := decodeFindings(t, out.Bytes())
	require.Len(t, got, 1)
	assert.Equal(t, "secret20", got[0].Snippet)

	vscanDelimiter = "::"
	assert.ErrorContains(t, runVScan(cmd, []string{dir}), "single character")
}

func TestVectorSnippet(t *testing.T) {
	snippetBytes = 128
	segments := [][]byte{[]byte("ab"), []byte(""), []byte("cde"), []byte("f")}

	assert.Equal(t, []byte("bcd"), vectorSnippet(segments, types.MatchEvent{From: 1, To: 4}))
	assert.Equal(t, []byte("abcdef"), vectorSnippet(segments, types.MatchEvent{From: 0, To: 6}))
	assert.Equal(t, []byte("f"), vectorSnippet(segments, types.MatchEvent{From: 5, To: 6}))

	snippetBytes = 2
	assert.Equal(t, []byte("bc"), vectorSnippet(segments, types.MatchEvent{From: 1, To: 4}))

	snippetBytes = 0
	assert.Nil(t, vectorSnippet(segments, types.MatchEvent{From: 1, To: 4}))
}
