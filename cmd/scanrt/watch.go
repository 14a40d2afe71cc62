package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-json-experiment/json"
	"github.com/praetorian-inc/scanrt/pkg/reload"
	"github.com/praetorian-inc/scanrt/pkg/rule"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds the lines watch scans.
const maxLineSize = 1 << 20

var watchNoValidate bool

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Scan lines while reloading the pattern file on change",
	Long: `Scan every line of a file, or of stdin when no file is given, in block
mode and print one JSON object per match. The --patterns file is watched and
recompiled whenever it changes; lines scanned after a successful reload use
the new patterns. A pattern file that fails to load or validate is ignored
and the previous patterns stay active.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addPatternFlags(watchCmd)
	watchCmd.Flags().BoolVar(&watchNoValidate, "no-validate", false, "Do not check pattern examples on load")
}

// watchMatch is one line of watch output.
type watchMatch struct {
	Line       int    `json:"line"`
	PatternID  uint32 `json:"pattern_id"`
	Pattern    string `json:"pattern"`
	From       uint64 `json:"from"`
	To         uint64 `json:"to"`
	Generation uint64 `json:"generation"`
	Snippet    string `json:"snippet,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	if patternsPath == "" {
		return fmt.Errorf("watch requires --patterns")
	}
	if patternsSet != "" {
		return fmt.Errorf("--set selects builtin patterns and cannot be combined with --patterns")
	}
	opts, err := scanOptions()
	if err != nil {
		return err
	}

	r, err := reload.New(patternsPath,
		reload.WithScanOptions(opts...),
		reload.WithLogger(logger),
		reload.WithValidation(!watchNoValidate),
		reload.WithFilter(rule.FilterConfig{
			Include: rule.ParseList(patternsInclude),
			Exclude: rule.ParseList(patternsExclude),
		}),
	)
	if err != nil {
		return fmt.Errorf("loading patterns: %w", err)
	}
	defer r.Close()

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Watch(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return scanLines(gctx, r, in, cmd.OutOrStdout())
	})
	return g.Wait()
}

func scanLines(ctx context.Context, r *reload.Reloader, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := sc.Bytes()

		var events []types.MatchEvent
		_, snap, err := r.ScanSnapshot(line, limitMatches(&events, 0))
		if err != nil {
			return fmt.Errorf("scanning line %d: %w", n, err)
		}
		names := make(map[uint32]string, len(snap.Patterns))
		for _, p := range snap.Patterns {
			names[p.ID] = p.Label()
		}
		for _, ev := range events {
			m := watchMatch{
				Line:       n,
				PatternID:  ev.ID,
				Pattern:    names[ev.ID],
				From:       ev.From,
				To:         ev.To,
				Generation: snap.Generation,
				Snippet:    string(snippet(ev, line)),
			}
			if err := json.MarshalWrite(out, m); err != nil {
				return err
			}
			if _, err := io.WriteString(out, "\n"); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}
