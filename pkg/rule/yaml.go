package rule

// yamlPattern is the on-disk form of a pattern. JSON files use the same
// field names.
type yamlPattern struct {
	ID               *uint32  `yaml:"id,omitempty"`
	Name             string   `yaml:"name"`
	Expression       string   `yaml:"expression"`
	Flags            []string `yaml:"flags,omitempty"`
	Keywords         []string `yaml:"keywords,omitempty"`
	Description      string   `yaml:"description,omitempty"`
	Examples         []string `yaml:"examples,omitempty"`
	NegativeExamples []string `yaml:"negative_examples,omitempty"`
}

// yamlPatternsFile is the top level of a pattern file.
type yamlPatternsFile struct {
	Patterns []yamlPattern `yaml:"patterns"`
}

// yamlSet names a subset of patterns by name.
type yamlSet struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Patterns    []string `yaml:"include_patterns"`
}

type yamlSetsFile struct {
	Sets []yamlSet `yaml:"sets"`
}
