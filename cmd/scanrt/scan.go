package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/praetorian-inc/scanrt/pkg/enum"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	scanWorkers    int
	scanMaxMatches int
)

var scanCmd = &cobra.Command{
	Use:   "scan <target>...",
	Short: "Scan inputs in block mode",
	Long: `Compile the selected patterns into a block database and scan every input
of the target as one contiguous buffer.

A target is a file, a directory, a git repository (--git), "-" for stdin,
s3://bucket/key, s3://bucket/prefix/, azblob://container/prefix,
github://owner[/repo] or gitlab://group[/project]. GitHub and GitLab
repositories are cloned into memory; set GITHUB_TOKEN or GITLAB_TOKEN for
private ones.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	addPatternFlags(scanCmd)
	addTargetFlags(scanCmd)
	addOutputFlags(scanCmd)
	addStoreFlags(scanCmd, true)
	scanCmd.Flags().IntVar(&scanWorkers, "workers", runtime.NumCPU(), "Inputs scanned concurrently")
	scanCmd.Flags().IntVar(&scanMaxMatches, "max-matches", 0, "Stop scanning an input after this many matches (0 = no limit)")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	patterns, err := loadPatterns()
	if err != nil {
		return err
	}
	opts, err := scanOptions()
	if err != nil {
		return err
	}
	db, err := scan.NewBlockDatabase(patterns, opts...)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}
	defer db.Close()

	pool, err := scan.NewScratchPool(db)
	if err != nil {
		return fmt.Errorf("allocating scratch: %w", err)
	}
	defer pool.Close()

	enumerator, err := createEnumerator(ctx, args)
	if err != nil {
		return fmt.Errorf("creating enumerator: %w", err)
	}

	rec, err := openRecorder(types.ModeBlock, db.Backend(), patterns)
	if err != nil {
		return err
	}

	res := newResults(types.ModeBlock, db.Backend(), patterns)
	scanErr := scanInputs(ctx, enumerator, scanWorkers, func(ctx context.Context, seq int, in enum.Input) error {
		return scanBlockInput(ctx, db, pool, rec, res, seq, in)
	})
	if err := rec.finish(res, scanErr); err != nil {
		logger.Error("failed to record run", "error", err)
	}
	if scanErr != nil {
		return scanErr
	}
	return writeResults(cmd, res)
}

// scanInputs runs fn for every input on up to workers goroutines and
// returns the first error. seq numbers inputs in enumeration order.
func scanInputs(ctx context.Context, e enum.Enumerator, workers int, fn func(ctx context.Context, seq int, in enum.Input) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	seq := 0
	err := e.Enumerate(gctx, func(in enum.Input) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		n := seq
		seq++
		g.Go(func() error {
			return fn(gctx, n, in)
		})
		return nil
	})
	if werr := g.Wait(); werr != nil {
		return werr
	}
	return err
}

func scanBlockInput(ctx context.Context, db *scan.BlockDatabase, pool *scan.ScratchPool, rec *recorder, res *results, seq int, in enum.Input) error {
	data, err := enum.ReadAll(ctx, in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in.Name, err)
	}

	id := types.ComputeInputID(data)
	skip, err := rec.scanned(id)
	if err != nil {
		return err
	}
	if skip {
		logger.Debug("skipping scanned input", "input", in.Name, "id", id.Hex())
		res.skip()
		return nil
	}

	sc, err := pool.Get()
	if err != nil {
		return err
	}
	defer pool.Put(sc)

	var events []types.MatchEvent
	out, err := db.Scan(data, sc, limitMatches(&events, scanMaxMatches))
	if err != nil {
		return fmt.Errorf("scanning %s: %w", in.Name, err)
	}

	snippets := make([][]byte, len(events))
	for i, ev := range events {
		snippets[i] = snippet(ev, data)
	}
	logger.Debug("scanned input", "input", in.Name, "bytes", len(data), "matches", len(events), "outcome", out)
	res.add(&inputResult{
		Seq:      seq,
		Name:     in.Name,
		ID:       id,
		Size:     int64(len(data)),
		Outcome:  out,
		Events:   events,
		Snippets: snippets,
	})
	return nil
}

// limitMatches collects events into dst and terminates the call once limit
// events were collected. A limit of zero or less collects everything.
func limitMatches(dst *[]types.MatchEvent, limit int) scan.MatchHandler {
	collect := scan.Collect(dst)
	return func(id uint32, from, to uint64, flags uint32) scan.Matching {
		collect(id, from, to, flags)
		if limit > 0 && len(*dst) >= limit {
			return scan.Terminate
		}
		return scan.Continue
	}
}
