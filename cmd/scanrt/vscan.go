package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/praetorian-inc/scanrt/pkg/enum"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
)

var (
	vscanDelimiter string
	vscanHeader    bool
)

var vscanCmd = &cobra.Command{
	Use:   "vscan <target>...",
	Short: "Scan CSV records in vectored mode",
	Long: `Compile the selected patterns into a vectored database and scan every
record of the CSV inputs of the target as one logical input made of its
fields. Matches may span field boundaries; offsets are relative to the
concatenation of the record's fields.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVScan,
}

func init() {
	addPatternFlags(vscanCmd)
	addTargetFlags(vscanCmd)
	addOutputFlags(vscanCmd)
	addStoreFlags(vscanCmd, false)
	vscanCmd.Flags().StringVar(&vscanDelimiter, "delimiter", ",", "Field delimiter")
	vscanCmd.Flags().BoolVar(&vscanHeader, "header", false, "Skip the first record of every input")
	vscanCmd.Flags().IntVar(&scanMaxMatches, "max-matches", 0, "Stop scanning a record after this many matches (0 = no limit)")
}

func runVScan(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	delim, size := utf8.DecodeRuneInString(vscanDelimiter)
	if size == 0 || size != len(vscanDelimiter) {
		return fmt.Errorf("delimiter must be a single character, got %q", vscanDelimiter)
	}

	patterns, err := loadPatterns()
	if err != nil {
		return err
	}
	opts, err := scanOptions()
	if err != nil {
		return err
	}
	db, err := scan.NewVectoredDatabase(patterns, opts...)
	if err != nil {
		return fmt.Errorf("compiling patterns: %w", err)
	}
	defer db.Close()

	sc, err := scan.AllocScratch(db)
	if err != nil {
		return fmt.Errorf("allocating scratch: %w", err)
	}
	defer sc.Close()

	enumerator, err := createEnumerator(ctx, args)
	if err != nil {
		return fmt.Errorf("creating enumerator: %w", err)
	}

	rec, err := openRecorder(types.ModeVectored, db.Backend(), patterns)
	if err != nil {
		return err
	}

	res := newResults(types.ModeVectored, db.Backend(), patterns)
	scanErr := enumerator.Enumerate(ctx, func(in enum.Input) error {
		return scanRecords(ctx, db, sc, delim, res, in)
	})
	if err := rec.finish(res, scanErr); err != nil {
		logger.Error("failed to record run", "error", err)
	}
	if scanErr != nil {
		return scanErr
	}
	return writeResults(cmd, res)
}

// scanRecords scans every CSV record of in as one vector. Records are named
// "<input>:<line>".
func scanRecords(ctx context.Context, db *scan.VectoredDatabase, sc *scan.Scratch, delim rune, res *results, in enum.Input) error {
	rc, err := in.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening %s: %w", in.Name, err)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", in.Name, err)
		}
		if n == 0 && vscanHeader {
			continue
		}
		line, _ := r.FieldPos(0)

		fields := make([][]byte, len(record))
		var total int
		for i, f := range record {
			fields[i] = []byte(f)
			total += len(f)
		}
		digest := types.NewInputDigest(int64(total))
		for _, f := range fields {
			digest.Write(f)
		}

		var events []types.MatchEvent
		out, err := db.Scan(fields, sc, limitMatches(&events, scanMaxMatches))
		if err != nil {
			return fmt.Errorf("scanning %s line %d: %w", in.Name, line, err)
		}

		snippets := make([][]byte, len(events))
		for i, ev := range events {
			snippets[i] = vectorSnippet(fields, ev)
		}
		res.add(&inputResult{
			Seq:      res.count(),
			Name:     fmt.Sprintf("%s:%d", in.Name, line),
			ID:       digest.Sum(),
			Size:     int64(total),
			Outcome:  out,
			Events:   events,
			Snippets: snippets,
		})
	}
}

// vectorSnippet copies the matched bytes of ev out of the segments, up to
// snippetBytes.
func vectorSnippet(segments [][]byte, ev types.MatchEvent) []byte {
	if snippetBytes <= 0 {
		return nil
	}
	from, to := ev.From, ev.To
	if to-from > uint64(snippetBytes) {
		to = from + uint64(snippetBytes)
	}

	var out []byte
	var base uint64
	for _, seg := range segments {
		end := base + uint64(len(seg))
		if end > from && base < to {
			lo := max(from, base) - base
			hi := min(to, end) - base
			out = append(out, seg[lo:hi]...)
		}
		base = end
		if base >= to {
			break
		}
	}
	return out
}
