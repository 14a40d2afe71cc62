package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/praetorian-inc/scanrt/pkg/rule"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/spf13/cobra"
)

// Pattern selection, shared by every command that compiles a database.
var (
	patternsPath    string
	patternsSet     string
	patternsInclude string
	patternsExclude string
)

var patternsFormat string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect pattern files",
	Long:  "Commands for listing, grouping and checking the patterns scans compile",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patterns",
	Long:  "Display the selected patterns with their IDs, names and flags",
	RunE:  runPatternsList,
}

var patternsSetsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List builtin pattern sets",
	RunE:  runPatternsSets,
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile patterns and check their examples",
	Long: `Compile the selected patterns into one database and scan every example
and negative example: examples must match their own pattern, negative
examples must not.`,
	RunE: runPatternsValidate,
}

func init() {
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsSetsCmd)
	patternsCmd.AddCommand(patternsValidateCmd)

	addPatternFlags(patternsListCmd)
	addPatternFlags(patternsValidateCmd)
	patternsListCmd.Flags().StringVar(&patternsFormat, "format", "table", "Output format: table, json")
	patternsSetsCmd.Flags().StringVar(&patternsFormat, "format", "table", "Output format: table, json")
}

func addPatternFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&patternsPath, "patterns", "", "Path to a YAML or JSON pattern file (default: builtin patterns)")
	cmd.Flags().StringVar(&patternsSet, "set", "", "Builtin pattern set to select")
	cmd.Flags().StringVar(&patternsInclude, "include", "", "Include patterns whose name matches a regex (comma-separated)")
	cmd.Flags().StringVar(&patternsExclude, "exclude", "", "Exclude patterns whose name matches a regex (comma-separated)")
}

// loadPatterns loads the builtin or custom patterns, narrows them to a set
// and applies the include and exclude filters.
func loadPatterns() ([]*types.Pattern, error) {
	loader := rule.NewLoader()

	var patterns []*types.Pattern
	var err error
	if patternsPath != "" {
		if patternsSet != "" {
			return nil, fmt.Errorf("--set selects builtin patterns and cannot be combined with --patterns")
		}
		patterns, err = loader.LoadFile(patternsPath)
		if err != nil {
			return nil, fmt.Errorf("loading patterns from %s: %w", patternsPath, err)
		}
	} else {
		patterns, err = loader.LoadBuiltin()
		if err != nil {
			return nil, fmt.Errorf("loading builtin patterns: %w", err)
		}
	}

	if patternsSet != "" {
		sets, err := loader.LoadBuiltinSets()
		if err != nil {
			return nil, fmt.Errorf("loading builtin sets: %w", err)
		}
		set, err := rule.FindSet(sets, patternsSet)
		if err != nil {
			return nil, err
		}
		if patterns, err = rule.Select(patterns, set); err != nil {
			return nil, err
		}
	}

	patterns, err = rule.Filter(patterns, rule.FilterConfig{
		Include: rule.ParseList(patternsInclude),
		Exclude: rule.ParseList(patternsExclude),
	})
	if err != nil {
		return nil, fmt.Errorf("filtering patterns: %w", err)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns selected")
	}

	logger.Debug("patterns loaded", "count", len(patterns))
	return patterns, nil
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	patterns, err := loadPatterns()
	if err != nil {
		return err
	}

	switch patternsFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), patternViews(patterns))
	case "table":
		return outputPatternsTable(cmd.OutOrStdout(), patterns)
	default:
		return fmt.Errorf("unknown output format: %s", patternsFormat)
	}
}

func runPatternsSets(cmd *cobra.Command, args []string) error {
	sets, err := rule.NewLoader().LoadBuiltinSets()
	if err != nil {
		return fmt.Errorf("loading builtin sets: %w", err)
	}

	switch patternsFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), sets)
	case "table":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "ID\tName\tPatterns\n")
		fmt.Fprintf(w, "--\t----\t--------\n")
		for _, s := range sets {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, strings.Join(s.Patterns, ","))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", patternsFormat)
	}
}

func runPatternsValidate(cmd *cobra.Command, args []string) error {
	patterns, err := loadPatterns()
	if err != nil {
		return err
	}
	opts, err := scanOptions()
	if err != nil {
		return err
	}
	if err := rule.Validate(patterns, opts...); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d patterns OK\n", len(patterns))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type patternView struct {
	ID           uint32   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Expression   string   `json:"expression"`
	Flags        string   `json:"flags"`
	Keywords     []string `json:"keywords,omitempty"`
	Description  string   `json:"description,omitempty"`
	StructuralID string   `json:"structural_id"`
}

func patternViews(patterns []*types.Pattern) []patternView {
	views := make([]patternView, 0, len(patterns))
	for _, p := range patterns {
		views = append(views, patternView{
			ID:           p.ID,
			Name:         p.Name,
			Expression:   p.Expression,
			Flags:        p.Flags.String(),
			Keywords:     p.Keywords,
			Description:  p.Description,
			StructuralID: p.ComputeStructuralID(),
		})
	}
	return views
}

func outputPatternsTable(out io.Writer, patterns []*types.Pattern) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "ID\tName\tFlags\n")
	fmt.Fprintf(w, "--\t----\t-----\n")
	for _, p := range patterns {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.Label(), p.Flags.String())
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	if err := json.MarshalWrite(w, v, jsontext.WithIndent("  ")); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
