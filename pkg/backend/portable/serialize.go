package portable

import (
	"github.com/go-json-experiment/json"
	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

const magic = "scanrt-portable-db"

type serializedDB struct {
	Magic    string              `json:"magic"`
	Version  string              `json:"version"`
	Features []string            `json:"features,omitempty"`
	Mode     string              `json:"mode"`
	Patterns []serializedPattern `json:"patterns"`
}

type serializedPattern struct {
	ID         uint32   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Expression string   `json:"expression"`
	Flags      uint32   `json:"flags,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// Marshal serializes the database. Patterns are stored in source form and
// recompiled by Unmarshal.
func (d *database) Marshal() ([]byte, error) {
	if d.closed.Load() {
		return nil, backend.StatusInvalid
	}
	out := serializedDB{
		Magic:    magic,
		Version:  Version,
		Features: d.features,
		Mode:     d.mode.String(),
		Patterns: make([]serializedPattern, len(d.patterns)),
	}
	for i, p := range d.patterns {
		out.Patterns[i] = serializedPattern{
			ID:         p.src.ID,
			Name:       p.src.Name,
			Expression: p.src.Expression,
			Flags:      uint32(p.src.Flags),
			Keywords:   p.src.Keywords,
		}
	}
	return json.Marshal(out)
}

// Unmarshal restores a database for mode. The stored version, CPU features
// and mode must match this backend.
func (b *Backend) Unmarshal(data []byte, mode types.Mode) (backend.DB, error) {
	var in serializedDB
	if err := json.Unmarshal(data, &in); err != nil || in.Magic != magic {
		return nil, backend.StatusInvalid
	}
	if in.Version != Version {
		return nil, backend.StatusDBVersion
	}
	host := hostFeatures()
	if !hasFeatures(host, in.Features) {
		return nil, backend.StatusDBPlatform
	}
	stored, err := types.ParseMode(in.Mode)
	if err != nil {
		return nil, backend.StatusInvalid
	}
	if stored != mode {
		return nil, backend.StatusDBMode
	}

	patterns := make([]*types.Pattern, len(in.Patterns))
	for i, p := range in.Patterns {
		patterns[i] = &types.Pattern{
			ID:         p.ID,
			Name:       p.Name,
			Expression: p.Expression,
			Flags:      types.CompileFlag(p.Flags),
			Keywords:   p.Keywords,
		}
	}
	db, err := b.Compile(patterns, mode)
	if err != nil {
		return nil, backend.StatusInvalid
	}
	db.(*database).features = in.Features
	return db, nil
}
