package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/praetorian-inc/scanrt/pkg/backend/portable"
	"github.com/praetorian-inc/scanrt/pkg/reload"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, data []byte) []watchMatch {
	t.Helper()
	var out []watchMatch
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m watchMatch
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestScanLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yml")
	require.NoError(t, os.WriteFile(path, []byte(testPatterns), 0644))
	r, err := reload.New(path, reload.WithScanOptions(scan.WithBackend(portable.New())))
	require.NoError(t, err)
	defer r.Close()

	snippetBytes = 128
	in := strings.NewReader("nothing\nsecret42 and tok_abcd\n\nsecret99\n")
	var out bytes.Buffer
	require.NoError(t, scanLines(context.Background(), r, in, &out))

	got := decodeLines(t, out.Bytes())
	require.Len(t, got, 3)
	assert.Equal(t, watchMatch{Line: 2, PatternID: 1, Pattern: "secret_word", From: 0, To: 8, Generation: 1, Snippet: "secret42"}, got[0])
	assert.Equal(t, "token", got[1].Pattern)
	assert.Equal(t, 4, got[2].Line)
}

func TestRunWatch(t *testing.T) {
	resetFlags(t)
	cmd, out, _ := newTestCmd()
	cmd.SetIn(strings.NewReader("tok_abcd\n"))

	require.NoError(t, runWatch(cmd, nil))
	got := decodeLines(t, out.Bytes())
	require.Len(t, got, 1)
	assert.Equal(t, "token", got[0].Pattern)

	patternsPath = ""
	assert.ErrorContains(t, runWatch(cmd, nil), "requires --patterns")
}
