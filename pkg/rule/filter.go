package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/praetorian-inc/scanrt/pkg/types"
)

// FilterConfig specifies include and exclude expressions matched against
// pattern labels (the name, or the numeric ID for unnamed patterns).
type FilterConfig struct {
	Include []string // only matching patterns are kept
	Exclude []string // matching patterns are dropped
}

// ParseList splits a comma-separated flag value into trimmed, non-empty
// items.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Filter applies include then exclude. An empty include list keeps
// everything.
func Filter(patterns []*types.Pattern, config FilterConfig) ([]*types.Pattern, error) {
	if len(patterns) == 0 {
		return patterns, nil
	}

	include, err := compileAll(config.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(config.Exclude)
	if err != nil {
		return nil, err
	}

	result := make([]*types.Pattern, 0, len(patterns))
	for _, p := range patterns {
		label := p.Label()
		if len(include) > 0 && !matchesAny(label, include) {
			continue
		}
		if matchesAny(label, exclude) {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	var res []*regexp.Regexp
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", expr, err)
		}
		res = append(res, re)
	}
	return res, nil
}

func matchesAny(label string, regexes []*regexp.Regexp) bool {
	for _, re := range regexes {
		if re.MatchString(label) {
			return true
		}
	}
	return false
}
