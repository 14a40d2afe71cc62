package main

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/natefinch/atomic"
	"github.com/praetorian-inc/scanrt/pkg/sarif"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	outputFormat string
	outputPath   string
	outputColor  string
	snippetBytes int
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outputFormat, "format", "human", "Output format: human, json, sarif")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&outputColor, "color", "auto", "Color output: auto, always, never")
	cmd.Flags().IntVar(&snippetBytes, "snippet-bytes", 128, "Matched bytes to show per finding (0 to disable)")
}

// inputResult is what scanning one input produced. Seq is the input's
// position in enumeration order. Snippets is parallel to Events and may hold
// nils.
type inputResult struct {
	Seq      int
	Name     string
	ID       types.InputID
	Size     int64
	Outcome  scan.Outcome
	Events   []types.MatchEvent
	Snippets [][]byte
}

// results collects input results from concurrent scans.
type results struct {
	mode     types.Mode
	backend  string
	patterns []*types.Pattern
	byID     map[uint32]*types.Pattern

	mu      sync.Mutex
	inputs  []*inputResult
	skipped int
}

func newResults(mode types.Mode, backendName string, patterns []*types.Pattern) *results {
	byID := make(map[uint32]*types.Pattern, len(patterns))
	for _, p := range patterns {
		byID[p.ID] = p
	}
	return &results{mode: mode, backend: backendName, patterns: patterns, byID: byID}
}

func (r *results) add(in *inputResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
}

func (r *results) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs)
}

func (r *results) skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

// sorted returns the inputs in enumeration order. Events keep delivery
// order.
func (r *results) sorted() []*inputResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.inputs)
	slices.SortStableFunc(out, func(a, b *inputResult) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

func (r *results) matchCount() int {
	n := 0
	for _, in := range r.sorted() {
		n += len(in.Events)
	}
	return n
}

// outcome summarizes a finished run for the store.
func (r *results) outcome() string {
	for _, in := range r.sorted() {
		if in.Outcome == scan.Terminated {
			return scan.Terminated.String()
		}
	}
	return scan.Completed.String()
}

func (r *results) patternName(id uint32) string {
	if p, ok := r.byID[id]; ok {
		return p.Label()
	}
	return (&types.Pattern{ID: id}).Label()
}

// finding is the JSON form of one match.
type finding struct {
	Input     string `json:"input"`
	InputID   string `json:"input_id,omitempty"`
	PatternID uint32 `json:"pattern_id"`
	Pattern   string `json:"pattern"`
	From      uint64 `json:"from"`
	To        uint64 `json:"to"`
	Snippet   string `json:"snippet,omitempty"`
}

func (r *results) findings() []finding {
	out := []finding{}
	for _, in := range r.sorted() {
		inputID := ""
		if !in.ID.IsZero() {
			inputID = in.ID.Hex()
		}
		for i, ev := range in.Events {
			out = append(out, finding{
				Input:     in.Name,
				InputID:   inputID,
				PatternID: ev.ID,
				Pattern:   r.patternName(ev.ID),
				From:      ev.From,
				To:        ev.To,
				Snippet:   string(in.Snippets[i]),
			})
		}
	}
	return out
}

// snippet returns at most snippetBytes of the matched bytes.
func snippet(ev types.MatchEvent, data []byte) []byte {
	if snippetBytes <= 0 {
		return nil
	}
	b := ev.Slice(data)
	if len(b) > snippetBytes {
		b = b[:snippetBytes]
	}
	return bytes.Clone(b)
}

// writeResults renders r in the selected format, to stdout or atomically to
// --output. The summary goes to stderr unless the report is human-readable
// and on stdout.
func writeResults(cmd *cobra.Command, r *results) error {
	var buf bytes.Buffer
	out := cmd.OutOrStdout()
	if outputPath != "" {
		out = &buf
	}

	var err error
	switch outputFormat {
	case "json":
		err = writeJSON(out, r.findings())
	case "sarif":
		err = writeSARIF(out, r)
	case "human":
		var enabled bool
		if enabled, err = colorEnabled(outputColor, outputPath == ""); err == nil {
			err = writeHuman(out, r, newStyles(enabled))
		}
	default:
		err = fmt.Errorf("unknown output format: %s", outputFormat)
	}
	if err != nil {
		return err
	}

	if outputPath != "" {
		if err := atomic.WriteFile(outputPath, &buf); err != nil {
			return fmt.Errorf("writing %s: %w", outputPath, err)
		}
	}
	if outputFormat != "human" || outputPath != "" {
		writeSummary(cmd.ErrOrStderr(), r)
	}
	return nil
}

func writeSARIF(w io.Writer, r *results) error {
	report := sarif.NewReport()
	for _, p := range r.patterns {
		report.AddRule(p)
	}
	for _, in := range r.sorted() {
		for i, ev := range in.Events {
			report.AddResult(in.Name, ev, in.Snippets[i])
		}
	}
	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func writeSummary(w io.Writer, r *results) {
	fmt.Fprintf(w, "Scanned %d inputs in %s mode (%s backend): %d matches",
		len(r.sorted()), strings.ToLower(r.mode.String()), r.backend, r.matchCount())
	if r.skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", r.skipped)
	}
	fmt.Fprintln(w)
}

// styles holds the color formatters of human output.
type styles struct {
	findingHeading *color.Color
	id             *color.Color
	patternName    *color.Color
	heading        *color.Color
	match          *color.Color
	metadata       *color.Color
}

func newStyles(enabled bool) *styles {
	s := &styles{
		findingHeading: color.New(color.Bold, color.FgHiWhite),
		id:             color.New(color.FgHiGreen),
		patternName:    color.New(color.Bold, color.FgHiBlue),
		heading:        color.New(color.Bold),
		match:          color.New(color.FgYellow),
		metadata:       color.New(color.FgHiBlue),
	}
	if !enabled {
		for _, c := range []*color.Color{s.findingHeading, s.id, s.patternName, s.heading, s.match, s.metadata} {
			c.DisableColor()
		}
	}
	return s
}

// colorEnabled resolves --color. auto colors only a terminal stdout and
// honors NO_COLOR.
func colorEnabled(mode string, toStdout bool) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		if !toStdout || os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	default:
		return false, fmt.Errorf("invalid --color value %q (want auto, always or never)", mode)
	}
}

func writeHuman(w io.Writer, r *results, st *styles) error {
	n := 0
	for _, in := range r.sorted() {
		for i, ev := range in.Events {
			n++
			fmt.Fprintf(w, "%s %s %s\n",
				st.findingHeading.Sprintf("Finding %d:", n),
				st.patternName.Sprint(r.patternName(ev.ID)),
				st.id.Sprintf("(id %d)", ev.ID))
			fmt.Fprintf(w, "  %s %s\n", st.heading.Sprint("Input:"), in.Name)
			if !in.ID.IsZero() {
				fmt.Fprintf(w, "  %s %s\n", st.heading.Sprint("Input ID:"), st.metadata.Sprint(in.ID.Hex()))
			}
			fmt.Fprintf(w, "  %s %d-%d\n", st.heading.Sprint("Offsets:"), ev.From, ev.To)
			if s := in.Snippets[i]; len(s) > 0 {
				fmt.Fprintf(w, "  %s %s\n", st.heading.Sprint("Match:"), st.match.Sprintf("%q", s))
			}
			fmt.Fprintln(w)
		}
	}
	writeSummary(w, r)
	return nil
}
