// Package sarif renders match events as a SARIF 2.1.0 log. Locations are
// byte regions, since scanned inputs need not be text.
package sarif

import (
	"path/filepath"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// SARIF 2.1.0 constants
const (
	SchemaURI   = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	Version     = "2.1.0"
	ToolName    = "scanrt"
	ToolVersion = "0.1.0"
)

// Report is the top-level SARIF report structure
type Report struct {
	Schema  string `json:"$schema"`
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single invocation of the tool
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`

	rules map[uint32]int // pattern ID -> index in Driver.Rules
}

// Tool describes the analysis tool
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver contains tool metadata
type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Rules   []Rule `json:"rules,omitempty"`
}

// Rule describes one pattern.
type Rule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	ShortDescription ShortDescription `json:"shortDescription"`
	Properties       RuleProperties   `json:"properties"`
}

// RuleProperties carries the compiled form of the pattern.
type RuleProperties struct {
	Expression   string `json:"expression"`
	Flags        string `json:"flags"`
	StructuralID string `json:"structuralId"`
}

// ShortDescription contains rule description text
type ShortDescription struct {
	Text string `json:"text"`
}

// Result represents a single match
type Result struct {
	RuleID    string     `json:"ruleId"`
	RuleIndex int        `json:"ruleIndex"`
	Level     string     `json:"level"`
	Message   Message    `json:"message"`
	Locations []Location `json:"locations"`
}

// Message contains the result message
type Message struct {
	Text string `json:"text"`
}

// Location describes where a result was found
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation specifies file location
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

// ArtifactLocation identifies the input
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region is a byte range of the input.
type Region struct {
	ByteOffset uint64   `json:"byteOffset"`
	ByteLength uint64   `json:"byteLength"`
	Snippet    *Snippet `json:"snippet,omitempty"`
}

// Snippet contains the matched text
type Snippet struct {
	Text string `json:"text"`
}

// NewReport creates a new SARIF report with initialized structure
func NewReport() *Report {
	return &Report{
		Schema:  SchemaURI,
		Version: Version,
		Runs: []Run{
			{
				Tool: Tool{
					Driver: Driver{
						Name:    ToolName,
						Version: ToolVersion,
						Rules:   []Rule{},
					},
				},
				Results: []Result{},
				rules:   make(map[uint32]int),
			},
		},
	}
}

// AddRule adds a pattern to the report. Adding the same ID twice is a
// no-op.
func (r *Report) AddRule(p *types.Pattern) {
	run := &r.Runs[0]
	if _, ok := run.rules[p.ID]; ok {
		return
	}
	run.rules[p.ID] = len(run.Tool.Driver.Rules)
	run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, Rule{
		ID:               p.Label(),
		Name:             p.Label(),
		ShortDescription: ShortDescription{Text: p.Description},
		Properties: RuleProperties{
			Expression:   p.Expression,
			Flags:        p.Flags.String(),
			StructuralID: p.ComputeStructuralID(),
		},
	})
}

// AddResult records ev found in input. snippet may be nil. Events for
// patterns never added with AddRule get a numeric rule ID and index -1.
func (r *Report) AddResult(input string, ev types.MatchEvent, snippet []byte) {
	run := &r.Runs[0]

	ruleID := (&types.Pattern{ID: ev.ID}).Label()
	ruleIndex := -1
	message := ruleID
	if idx, ok := run.rules[ev.ID]; ok {
		ruleIndex = idx
		ruleID = run.Tool.Driver.Rules[idx].ID
		message = run.Tool.Driver.Rules[idx].Name
	}

	region := Region{ByteOffset: ev.From, ByteLength: ev.Len()}
	if len(snippet) > 0 {
		region.Snippet = &Snippet{Text: string(snippet)}
	}

	run.Results = append(run.Results, Result{
		RuleID:    ruleID,
		RuleIndex: ruleIndex,
		Level:     "warning",
		Message:   Message{Text: message},
		Locations: []Location{
			{
				PhysicalLocation: PhysicalLocation{
					ArtifactLocation: ArtifactLocation{URI: formatFileURI(input)},
					Region:           region,
				},
			},
		},
	})
}

// ToJSON serializes the report to indented JSON bytes
func (r *Report) ToJSON() ([]byte, error) {
	return json.Marshal(r, jsontext.WithIndent("  "))
}

// formatFileURI converts a path to SARIF URI format. Absolute paths get a
// file:// prefix; relative paths and URLs such as s3://bucket/key stay as
// they are.
func formatFileURI(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if filepath.IsAbs(path) {
		path = filepath.ToSlash(path)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return "file://" + path
	}
	return filepath.ToSlash(path)
}
