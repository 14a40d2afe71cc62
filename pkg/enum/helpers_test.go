package enum

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// collect enumerates e and returns name -> content.
func collect(t *testing.T, e Enumerator) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := e.Enumerate(context.Background(), func(in Input) error {
		data, err := ReadAll(context.Background(), in)
		if err != nil {
			return err
		}
		out[in.Name] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}
