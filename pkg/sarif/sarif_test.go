package sarif

import (
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReport(t *testing.T) {
	report := NewReport()

	assert.Equal(t, SchemaURI, report.Schema)
	assert.Equal(t, Version, report.Version)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, ToolName, report.Runs[0].Tool.Driver.Name)
	assert.Equal(t, ToolVersion, report.Runs[0].Tool.Driver.Version)
}

func TestAddRule(t *testing.T) {
	report := NewReport()

	p := &types.Pattern{ID: 3, Name: "email", Expression: "[a-z]+@[a-z.]+", Flags: types.Caseless | types.SomLeftMost, Description: "Email address"}
	report.AddRule(p)
	report.AddRule(p)

	rules := report.Runs[0].Tool.Driver.Rules
	require.Len(t, rules, 1)
	assert.Equal(t, "email", rules[0].ID)
	assert.Equal(t, "Email address", rules[0].ShortDescription.Text)
	assert.Equal(t, "caseless|som_leftmost", rules[0].Properties.Flags)
	assert.Equal(t, p.ComputeStructuralID(), rules[0].Properties.StructuralID)
}

func TestAddResult(t *testing.T) {
	report := NewReport()
	report.AddRule(&types.Pattern{ID: 0, Name: "us_currency"})

	report.AddResult("/tmp/in.txt", types.MatchEvent{ID: 0, From: 6, To: 12}, []byte("$12.00"))
	report.AddResult("data/in.txt", types.MatchEvent{ID: 9, From: 0, To: 2}, nil)

	results := report.Runs[0].Results
	require.Len(t, results, 2)

	assert.Equal(t, "us_currency", results[0].RuleID)
	assert.Equal(t, 0, results[0].RuleIndex)
	loc := results[0].Locations[0].PhysicalLocation
	assert.Equal(t, "file:///tmp/in.txt", loc.ArtifactLocation.URI)
	assert.Equal(t, uint64(6), loc.Region.ByteOffset)
	assert.Equal(t, uint64(6), loc.Region.ByteLength)
	require.NotNil(t, loc.Region.Snippet)
	assert.Equal(t, "$12.00", loc.Region.Snippet.Text)

	assert.Equal(t, "9", results[1].RuleID)
	assert.Equal(t, -1, results[1].RuleIndex)
	assert.Equal(t, "data/in.txt", results[1].Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Nil(t, results[1].Locations[0].PhysicalLocation.Region.Snippet)
}

func TestToJSON(t *testing.T) {
	report := NewReport()
	report.AddRule(&types.Pattern{ID: 1, Name: "ssn"})
	report.AddResult("s3://bucket/key", types.MatchEvent{ID: 1, From: 0, To: 11}, []byte("123-45-6789"))

	data, err := report.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2.1.0", decoded["version"])
	assert.Equal(t, SchemaURI, decoded["$schema"])

	runs := decoded["runs"].([]any)
	results := runs[0].(map[string]any)["results"].([]any)
	require.Len(t, results, 1)
	loc := results[0].(map[string]any)["locations"].([]any)[0].(map[string]any)["physicalLocation"].(map[string]any)
	assert.Equal(t, "s3://bucket/key", loc["artifactLocation"].(map[string]any)["uri"])
	region := loc["region"].(map[string]any)
	assert.Equal(t, float64(0), region["byteOffset"])
	assert.Equal(t, float64(11), region["byteLength"])
}

func TestFormatFileURI(t *testing.T) {
	assert.Equal(t, "file:///abs/path.txt", formatFileURI("/abs/path.txt"))
	assert.Equal(t, "rel/path.txt", formatFileURI("rel/path.txt"))
	assert.Equal(t, "azblob://c/b", formatFileURI("azblob://c/b"))
	assert.Equal(t, "-", formatFileURI("-"))
}
