package store

import (
	"fmt"
)

// MergeStats tracks merge operation statistics.
type MergeStats struct {
	RunsMerged       int
	PatternsMerged   int
	InputsMerged     int
	MatchesMerged    int
	SourcesProcessed int
}

// Merge copies every run of each source into dst. Records dst already holds
// are left as they are.
func Merge(dst Store, sources ...Store) (*MergeStats, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no source stores specified")
	}

	stats := &MergeStats{}
	for i, src := range sources {
		if err := mergeFrom(dst, src, stats); err != nil {
			return stats, fmt.Errorf("merging source %d: %w", i, err)
		}
		stats.SourcesProcessed++
	}
	return stats, nil
}

func mergeFrom(dst, src Store, stats *MergeStats) error {
	runs, err := src.GetRuns()
	if err != nil {
		return err
	}

	for _, r := range runs {
		if err := dst.AddRun(r); err != nil {
			return err
		}
		stats.RunsMerged++

		patterns, err := src.GetPatterns(r.ID)
		if err != nil {
			return err
		}
		for _, p := range patterns {
			if err := dst.AddPattern(p); err != nil {
				return err
			}
			stats.PatternsMerged++
		}

		inputs, err := src.GetInputs(r.ID)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			if err := dst.AddInput(in); err != nil {
				return err
			}
			stats.InputsMerged++
		}

		matches, err := src.GetMatches(r.ID)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := dst.AddMatch(m); err != nil {
				return err
			}
			stats.MatchesMerged++
		}
	}
	return nil
}
