package rule

import (
	"fmt"
	"slices"

	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// ValidatePattern checks the fields a pattern file must provide.
func ValidatePattern(p *types.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Name == "" {
		return fmt.Errorf("pattern %d: name is required", p.ID)
	}
	return nil
}

// Validate checks a pattern list for consistency, compiles it as a block
// database and scans every example. Examples must produce a match for
// their own pattern and negative examples must not.
func Validate(patterns []*types.Pattern, opts ...scan.Option) error {
	if len(patterns) == 0 {
		return fmt.Errorf("no patterns")
	}

	ids := make(map[uint32]string, len(patterns))
	names := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		if err := ValidatePattern(p); err != nil {
			return err
		}
		if prev, ok := ids[p.ID]; ok {
			return fmt.Errorf("patterns %s and %s share ID %d", prev, p.Name, p.ID)
		}
		ids[p.ID] = p.Name
		if names[p.Name] {
			return fmt.Errorf("duplicate pattern name %s", p.Name)
		}
		names[p.Name] = true
	}

	db, err := scan.NewBlockDatabase(patterns, opts...)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}
	defer db.Close()

	scratch, err := scan.AllocScratch(db)
	if err != nil {
		return fmt.Errorf("allocating scratch: %w", err)
	}
	defer scratch.Close()

	for _, p := range patterns {
		for _, ex := range p.Examples {
			hit, err := matchesExample(db, scratch, p.ID, ex)
			if err != nil {
				return err
			}
			if !hit {
				return fmt.Errorf("pattern %s does not match example %q", p.Name, ex)
			}
		}
		for _, ex := range p.NegativeExamples {
			hit, err := matchesExample(db, scratch, p.ID, ex)
			if err != nil {
				return err
			}
			if hit {
				return fmt.Errorf("pattern %s matches negative example %q", p.Name, ex)
			}
		}
	}
	return nil
}

func matchesExample(db *scan.BlockDatabase, scratch *scan.Scratch, id uint32, example string) (bool, error) {
	var events []types.MatchEvent
	if _, err := db.Scan([]byte(example), scratch, scan.Collect(&events)); err != nil {
		return false, fmt.Errorf("scanning example %q: %w", example, err)
	}
	return slices.ContainsFunc(events, func(e types.MatchEvent) bool { return e.ID == id }), nil
}
