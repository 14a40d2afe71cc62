package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testPatterns = `patterns:
  - id: 1
    name: secret_word
    expression: 'secret[0-9]{2}'
    flags: [som_leftmost]
    examples: [a secret42 b]
  - id: 2
    name: token
    expression: 'tok_[a-z]{4}'
    flags: [som_leftmost]
    examples: [tok_abcd]
`

// resetFlags restores every package-level flag to its default and points
// the pattern flags at a test pattern file.
func resetFlags(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yml")
	require.NoError(t, os.WriteFile(path, []byte(testPatterns), 0644))

	verbose, quiet, showMetrics = false, false, false
	engineName = "portable"
	meterProvider, metricReader = nil, nil
	logger = slog.New(slog.DiscardHandler)

	patternsPath, patternsSet, patternsInclude, patternsExclude = path, "", "", ""
	patternsFormat = "table"

	targetGit, targetGitRef = false, ""
	targetMaxFileSize = 10 * 1024 * 1024
	targetIncludeHidden, targetSkipBinary, targetExtract = false, false, ""
	s3Region, s3Profile, s3RoleARN, s3Endpoint = "", "", "", ""

	outputFormat, outputPath, outputColor, snippetBytes = "json", "", "never", 128
	storePath, storeIncremental = "", false

	scanWorkers, scanMaxMatches = 2, 0
	vscanDelimiter, vscanHeader = ",", false
	streamChunkSize = 16
	infoMode, infoSave, infoLoad = "block", "", ""
	mergeOutput = ""
	watchNoValidate = false
}

// newTestCmd returns a command writing stdout and stderr to the buffers.
func newTestCmd() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

func writeInputs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func decodeFindings(t *testing.T, data []byte) []finding {
	t.Helper()
	var out []finding
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
