package rule

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Set is a named selection of patterns, referenced by pattern name.
type Set struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Patterns    []string `json:"patterns"`
}

// Loader reads pattern files and sets.
type Loader struct {
	fs fs.FS // builtin patterns and sets
}

// NewLoader creates a loader backed by the embedded builtin patterns.
func NewLoader() *Loader {
	return &Loader{fs: builtinFS}
}

// NewLoaderWithFS creates a loader whose builtin patterns come from fsys.
// fsys must have the same patterns/ and sets/ layout as the embedded one.
func NewLoaderWithFS(fsys fs.FS) *Loader {
	return &Loader{fs: fsys}
}

// Parse reads a YAML pattern file. Patterns without an explicit id get
// their position in the file.
func (l *Loader) Parse(data []byte) ([]*types.Pattern, error) {
	var file yamlPatternsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Patterns) == 0 {
		return nil, fmt.Errorf("no patterns found")
	}

	patterns := make([]*types.Pattern, 0, len(file.Patterns))
	for i, yp := range file.Patterns {
		p, err := convertYAMLPattern(yp, uint32(i))
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// ParseJSON reads a JSON pattern file. Comments and trailing commas are
// accepted.
func (l *Loader) ParseJSON(data []byte) ([]*types.Pattern, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	// Standard JSON is valid YAML, so both formats share one decoder.
	return l.Parse(std)
}

// LoadFile loads patterns from path. The format follows the extension:
// .json, .jsonc and .hujson are JSON, anything else is YAML.
func (l *Loader) LoadFile(path string) ([]*types.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var patterns []*types.Pattern
	if isJSON(path) {
		patterns, err = l.ParseJSON(data)
	} else {
		patterns, err = l.Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return patterns, nil
}

// LoadBuiltin loads every builtin pattern, ordered by ID.
func (l *Loader) LoadBuiltin() ([]*types.Pattern, error) {
	var patterns []*types.Pattern

	err := walkYAML(l.fs, "patterns", func(path string, data []byte) error {
		ps, err := l.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		patterns = append(patterns, ps...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(patterns, func(a, b *types.Pattern) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return patterns, nil
}

// ParseSets reads a YAML sets file.
func (l *Loader) ParseSets(data []byte) ([]*Set, error) {
	var file yamlSetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Sets) == 0 {
		return nil, fmt.Errorf("no sets found")
	}

	sets := make([]*Set, 0, len(file.Sets))
	for _, ys := range file.Sets {
		sets = append(sets, &Set{
			ID:          ys.ID,
			Name:        ys.Name,
			Description: ys.Description,
			Patterns:    ys.Patterns,
		})
	}
	return sets, nil
}

// LoadBuiltinSets loads every builtin set.
func (l *Loader) LoadBuiltinSets() ([]*Set, error) {
	var sets []*Set

	err := walkYAML(l.fs, "sets", func(path string, data []byte) error {
		ss, err := l.ParseSets(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		sets = append(sets, ss...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// Select returns the patterns a set names, in set order.
func Select(patterns []*types.Pattern, set *Set) ([]*types.Pattern, error) {
	byName := make(map[string]*types.Pattern, len(patterns))
	for _, p := range patterns {
		byName[p.Name] = p
	}

	selected := make([]*types.Pattern, 0, len(set.Patterns))
	for _, name := range set.Patterns {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("set %s references unknown pattern %q", set.ID, name)
		}
		selected = append(selected, p)
	}
	return selected, nil
}

// FindSet returns the set with the given ID.
func FindSet(sets []*Set, id string) (*Set, error) {
	for _, s := range sets {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown pattern set %q", id)
}

func convertYAMLPattern(yp yamlPattern, defaultID uint32) (*types.Pattern, error) {
	flags, err := types.ParseCompileFlags(yp.Flags...)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", yp.Name, err)
	}

	id := defaultID
	if yp.ID != nil {
		id = *yp.ID
	}

	return &types.Pattern{
		ID:               id,
		Name:             yp.Name,
		Expression:       yp.Expression,
		Flags:            flags,
		Keywords:         yp.Keywords,
		Description:      yp.Description,
		Examples:         yp.Examples,
		NegativeExamples: yp.NegativeExamples,
	}, nil
}

func walkYAML(fsys fs.FS, root string, fn func(path string, data []byte) error) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		return fn(path, data)
	})
}

func isJSON(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc", ".hujson":
		return true
	}
	return false
}
