package prefilter

import (
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// Prefilter uses Aho-Corasick to skip patterns whose keywords are absent
// from the input. Results are pattern indexes into the slice given to New.
//
// Caseless patterns never take part in keyword filtering because the
// automaton matches keywords byte for byte.
type Prefilter struct {
	mu        sync.Mutex // ahocorasick.Matcher keeps per-call state
	matcher   *ahocorasick.Matcher
	keywords  []string         // keyword at each index
	byKeyword map[string][]int // keyword -> pattern indexes needing it
	always    []int            // patterns without usable keywords
	total     int
}

// New creates a prefilter from patterns.
func New(patterns []*types.Pattern) *Prefilter {
	pf := &Prefilter{
		byKeyword: make(map[string][]int),
		total:     len(patterns),
	}

	seen := make(map[string]bool)
	for i, p := range patterns {
		if p == nil || len(p.Keywords) == 0 || p.Flags.Has(types.Caseless) {
			pf.always = append(pf.always, i)
			continue
		}
		for _, kw := range p.Keywords {
			if kw == "" {
				continue
			}
			if !seen[kw] {
				seen[kw] = true
				pf.keywords = append(pf.keywords, kw)
			}
			pf.byKeyword[kw] = append(pf.byKeyword[kw], i)
		}
	}

	// Patterns whose keywords were all empty strings are always checked.
	covered := make([]bool, len(patterns))
	for _, idxs := range pf.byKeyword {
		for _, i := range idxs {
			covered[i] = true
		}
	}
	for _, i := range pf.always {
		covered[i] = true
	}
	for i := range covered {
		if !covered[i] {
			pf.always = append(pf.always, i)
		}
	}

	if len(pf.keywords) > 0 {
		pf.matcher = ahocorasick.NewStringMatcher(pf.keywords)
	}
	return pf
}

// Filter marks in dst the patterns that might match content and returns dst.
// dst is reallocated when shorter than the pattern count.
func (pf *Prefilter) Filter(content []byte, dst []bool) []bool {
	if cap(dst) < pf.total {
		dst = make([]bool, pf.total)
	}
	dst = dst[:pf.total]
	clear(dst)

	for _, i := range pf.always {
		dst[i] = true
	}
	if pf.matcher == nil {
		return dst
	}

	pf.mu.Lock()
	hits := pf.matcher.Match(content)
	pf.mu.Unlock()

	for _, hit := range hits {
		for _, i := range pf.byKeyword[pf.keywords[hit]] {
			dst[i] = true
		}
	}
	return dst
}

// Keywords returns the number of distinct keywords in the automaton.
func (pf *Prefilter) Keywords() int {
	return len(pf.keywords)
}
