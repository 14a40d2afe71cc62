package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/praetorian-inc/scanrt/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScan_JSON(t *testing.T) {
	resetFlags(t)
	dir := writeInputs(t, map[string]string{
		"a.txt": "x secret42 y",
		"b.txt": "nothing here",
		"c.txt": "tok_abcd",
	})
	cmd, out, errOut := newTestCmd()

	require.NoError(t, runScan(cmd, []string{dir}))

	got := decodeFindings(t, out.Bytes())
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), got[0].Input)
	assert.Equal(t, "secret_word", got[0].Pattern)
	assert.Equal(t, uint64(2), got[0].From)
	assert.Equal(t, uint64(10), got[0].To)
	assert.Equal(t, "secret42", got[0].Snippet)
	assert.Len(t, got[0].InputID, 40)

	assert.Equal(t, filepath.Join(dir, "c.txt"), got[1].Input)
	assert.Equal(t, uint32(2), got[1].PatternID)

	assert.Contains(t, errOut.String(), "Scanned 3 inputs in block mode (portable backend): 2 matches")
}

func TestRunScan_MultipleTargets(t *testing.T) {
	resetFlags(t)
	dir := writeInputs(t, map[string]string{
		"a.txt": "secret01",
		"b.txt": "tok_wxyz",
	})
	other := writeInputs(t, map[string]string{"c.txt": "secret02"})
	cmd, out, errOut := newTestCmd()

	// a.txt is named twice and scanned once.
	require.NoError(t, runScan(cmd, []string{filepath.Join(dir, "a.txt"), dir, other}))

	got := decodeFindings(t, out.Bytes())
	require.Len(t, got, 3)
	assert.Equal(t, filepath.Join(dir, "a.txt"), got[0].Input)
	assert.Equal(t, filepath.Join(dir, "b.txt"), got[1].Input)
	assert.Equal(t, filepath.Join(other, "c.txt"), got[2].Input)
	assert.Contains(t, errOut.String(), "Scanned 3 inputs")
}

func TestRunScan_Human(t *testing.T) {
	resetFlags(t)
	outputFormat = "human"
	dir := writeInputs(t, map[string]string{"a.txt": "secret42"})
	cmd, out, _ := newTestCmd()

	require.NoError(t, runScan(cmd, []string{dir}))

	s := out.String()
	assert.Contains(t, s, "Finding 1: secret_word (id 1)")
	assert.Contains(t, s, "Offsets: 0-8")
	assert.Contains(t, s, `Match: "secret42"`)
	assert.Contains(t, s, "1 matches")
}

func TestRunScan_SARIFToFile(t *testing.T) {
	resetFlags(t)
	outputFormat = "sarif"
	outputPath = filepath.Join(t.TempDir(), "report.sarif")
	dir := writeInputs(t, map[string]string{"a.txt": "secret42 tok_wxyz"})
	cmd, out, errOut := newTestCmd()

	require.NoError(t, runScan(cmd, []string{dir}))

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "2 matches")
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.1.0"`)
	assert.Contains(t, string(data), `"ruleId": "secret_word"`)
	assert.Contains(t, string(data), `"ruleId": "token"`)
}

func TestRunScan_MaxMatchesTerminates(t *testing.T) {
	resetFlags(t)
	scanMaxMatches = 1
	storePath = filepath.Join(t.TempDir(), "runs.db")
	dir := writeInputs(t, map[string]string{"a.txt": "secret11 secret22 secret33"})
	cmd, out, _ := newTestCmd()

	require.NoError(t, runScan(cmd, []string{dir}))
	assert.Len(t, decodeFindings(t, out.Bytes()), 1)

	s, err := store.New(store.Config{Path: storePath})
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.GetRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "terminated", runs[0].Outcome)
	assert.False(t, runs[0].FinishedAt.IsZero())

	matches, err := s.GetMatches(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, []byte("secret11"), matches[0].Snippet)
}

func TestRunScan_Incremental(t *testing.T) {
	resetFlags(t)
	storePath = filepath.Join(t.TempDir(), "runs.db")
	storeIncremental = true
	dir := writeInputs(t, map[string]string{"a.txt": "secret42", "b.txt": "tok_abcd"})

	cmd, out, _ := newTestCmd()
	require.NoError(t, runScan(cmd, []string{dir}))
	assert.Len(t, decodeFindings(t, out.Bytes()), 2)

	cmd, out, errOut := newTestCmd()
	require.NoError(t, runScan(cmd, []string{dir}))
	assert.Empty(t, decodeFindings(t, out.Bytes()))
	assert.Contains(t, errOut.String(), "2 skipped")
}

func TestRunScan_Errors(t *testing.T) {
	resetFlags(t)
	cmd, _, _ := newTestCmd()
	assert.ErrorContains(t, runScan(cmd, []string{"/nonexistent/path"}), "target does not exist")

	storeIncremental = true
	assert.ErrorContains(t, runScan(cmd, []string{t.TempDir()}), "--incremental requires --store")

	resetFlags(t)
	outputFormat = "xml"
	assert.ErrorContains(t, runScan(cmd, []string{t.TempDir()}), "unknown output format")

	resetFlags(t)
	engineName = "nope"
	assert.ErrorContains(t, runScan(cmd, []string{t.TempDir()}), "unknown backend")
}

func TestRunScan_Git(t *testing.T) {
	resetFlags(t)
	targetGit = true
	cmd, _, _ := newTestCmd()
	// Not a repository.
	assert.Error(t, runScan(cmd, []string{t.TempDir()}))
}
