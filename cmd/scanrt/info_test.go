package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInfo_SaveAndLoad(t *testing.T) {
	resetFlags(t)
	infoMode = "stream"
	infoSave = filepath.Join(t.TempDir(), "db.bin")
	cmd, out, _ := newTestCmd()

	require.NoError(t, runInfo(cmd, nil))
	s := out.String()
	assert.Contains(t, s, "Backend: portable")
	assert.Contains(t, s, "Mode: STREAM")
	assert.Contains(t, s, "Patterns: 2")
	assert.Contains(t, s, "Scratch size:")
	assert.Contains(t, s, "Saved: "+infoSave)

	path := infoSave
	resetFlags(t)
	infoMode = "stream"
	infoLoad = path
	cmd, out, _ = newTestCmd()

	require.NoError(t, runInfo(cmd, nil))
	assert.Contains(t, out.String(), "Mode: STREAM")
	assert.NotContains(t, out.String(), "Patterns:")
}

func TestRunInfo_Errors(t *testing.T) {
	resetFlags(t)
	cmd, _, _ := newTestCmd()

	infoMode = "sideways"
	assert.ErrorContains(t, runInfo(cmd, nil), "unknown mode")

	infoMode = "block"
	infoLoad = filepath.Join(t.TempDir(), "missing.bin")
	assert.ErrorContains(t, runInfo(cmd, nil), "reading database")
}
