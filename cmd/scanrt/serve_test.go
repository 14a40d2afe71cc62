package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommand_Exists(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"serve"})
	assert.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name())
}

func TestRunServe(t *testing.T) {
	resetFlags(t)
	cmd, out, _ := newTestCmd()
	cmd.SetIn(strings.NewReader(`{"type":"scan","payload":{"content":"x secret42"}}` + "\n" + `{"type":"close"}` + "\n"))

	require.NoError(t, runServe(cmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"ready"`)
	assert.Contains(t, lines[0], `"patterns":2`)
	assert.Contains(t, lines[1], `"snippet":"secret42"`)
}
