package types

import (
	"fmt"
	"strings"
)

// CompileFlag is the per-pattern flag bitset understood by the backends.
// Values match the Hyperscan HS_FLAG_* constants.
type CompileFlag uint32

const (
	Caseless    CompileFlag = 1   // case-insensitive matching
	DotAll      CompileFlag = 2   // '.' also matches newlines
	MultiLine   CompileFlag = 4   // '^' and '$' match at line boundaries
	SingleMatch CompileFlag = 8   // report at most one match per pattern
	AllowEmpty  CompileFlag = 16  // allow zero-length matches
	UTF8        CompileFlag = 32  // treat the pattern and input as UTF-8
	UCP         CompileFlag = 64  // Unicode properties for \w, \d, \s
	Prefilter   CompileFlag = 128 // prefiltering mode
	SomLeftMost CompileFlag = 256 // report the leftmost start of match
)

var flagNames = []struct {
	flag CompileFlag
	name string
}{
	{Caseless, "caseless"},
	{DotAll, "dotall"},
	{MultiLine, "multiline"},
	{SingleMatch, "singlematch"},
	{AllowEmpty, "allowempty"},
	{UTF8, "utf8"},
	{UCP, "ucp"},
	{Prefilter, "prefilter"},
	{SomLeftMost, "som_leftmost"},
}

// Has reports whether all bits of other are set in f.
func (f CompileFlag) Has(other CompileFlag) bool {
	return f&other == other
}

// String renders the flag set as a '|' separated list of names.
func (f CompileFlag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseCompileFlag parses a single flag name. Names are case-insensitive and
// accept the Hyperscan spelling (e.g. "SOM_LEFTMOST", "CASELESS").
func ParseCompileFlag(name string) (CompileFlag, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "hs_flag_")
	for _, fn := range flagNames {
		if n == fn.name || n == strings.ReplaceAll(fn.name, "_", "") {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown compile flag %q", name)
}

// ParseCompileFlags parses a list of flag names, or a single '|' or ','
// separated string, into a flag set.
func ParseCompileFlags(names ...string) (CompileFlag, error) {
	var f CompileFlag
	for _, name := range names {
		for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '|' || r == ',' }) {
			if strings.TrimSpace(part) == "" {
				continue
			}
			flag, err := ParseCompileFlag(part)
			if err != nil {
				return 0, err
			}
			f |= flag
		}
	}
	return f, nil
}
