package main

import (
	"errors"
	"fmt"

	"github.com/praetorian-inc/scanrt/pkg/store"
	"github.com/spf13/cobra"
)

var mergeOutput string

var mergeCmd = &cobra.Command{
	Use:   "merge <source1> <source2> [source3...]",
	Short: "Merge recorded runs into one store",
	Long: `Copy the runs, patterns, inputs and matches of several stores into one
output store. Sources and output are SQLite files or postgres:// URLs.

Records already present in the output are kept once.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "merged.db", "Output store path or URL")
}

func runMerge(cmd *cobra.Command, args []string) (err error) {
	dst, err := store.New(store.Config{Path: mergeOutput})
	if err != nil {
		return fmt.Errorf("opening %s: %w", mergeOutput, err)
	}
	defer func() { err = errors.Join(err, dst.Close()) }()

	sources := make([]store.Store, 0, len(args))
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()
	for _, path := range args {
		if path == mergeOutput {
			return fmt.Errorf("source %s is also the output", path)
		}
		s, err := store.New(store.Config{Path: path})
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		sources = append(sources, s)
	}

	stats, err := store.Merge(dst, sources...)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Merge complete:\n")
	fmt.Fprintf(out, "  Sources processed: %d\n", stats.SourcesProcessed)
	fmt.Fprintf(out, "  Runs merged: %d\n", stats.RunsMerged)
	fmt.Fprintf(out, "  Patterns merged: %d\n", stats.PatternsMerged)
	fmt.Fprintf(out, "  Inputs merged: %d\n", stats.InputsMerged)
	fmt.Fprintf(out, "  Matches merged: %d\n", stats.MatchesMerged)
	fmt.Fprintf(out, "Output: %s\n", mergeOutput)
	return nil
}
