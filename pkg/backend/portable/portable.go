// Package portable is the default scanning backend. It runs every pattern as
// a github.com/dlclark/regexp2 expression over the input bytes and needs no
// CGO.
//
// Performance trade-offs compared to the hyperscan backend:
//   - no SIMD automaton; each candidate pattern searches the input separately
//   - an Aho-Corasick keyword prefilter skips patterns whose keywords are absent
//   - streams keep a bounded history (the horizon) and re-search it on each
//     feed; a match that would start more than the horizon before the end of
//     the data fed so far is not reported
//
// Matching is byte oriented: each input byte is presented to regexp2 as one
// rune, so reported offsets are byte offsets. Patterns compiled with the UTF8
// flag see decoded UTF-8 instead and their offsets are mapped back to bytes.
package portable

import (
	"fmt"
	"log/slog"
	"regexp/syntax"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/prefilter"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// Version of the portable engine and of its serialized database format.
const Version = "1.0.0"

const (
	// DefaultHorizon bounds how far back a streaming match may start,
	// relative to the end of the data fed so far. Older starts are lost.
	DefaultHorizon = 64 << 10

	// DefaultMatchTimeout stops catastrophic backtracking.
	DefaultMatchTimeout = 5 * time.Second

	// lookbehind is the context kept before the earliest resume offset so
	// that anchors, word boundaries and short lookbehinds see real input.
	lookbehind = 16

	// lookahead is how close to the unfinished end of a window a match of a
	// lookaround pattern may end before it is held back.
	lookahead = 16
)

// Backend implements backend.Backend on regexp2.
type Backend struct {
	horizon int
	timeout time.Duration
	logger  *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithHorizon sets the streaming history horizon in bytes.
func WithHorizon(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.horizon = n
		}
	}
}

// WithMatchTimeout sets the per-search regexp timeout.
func WithMatchTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger used for skipped patterns.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a portable backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		horizon: DefaultHorizon,
		timeout: DefaultMatchTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string    { return "portable" }
func (b *Backend) Version() string { return Version }

// Horizon returns the configured streaming horizon.
func (b *Backend) Horizon() int { return b.horizon }

// ValidPlatform always succeeds: regexp2 runs on every Go target.
func (b *Backend) ValidPlatform() error { return nil }

// Compile builds a database for mode.
func (b *Backend) Compile(patterns []*types.Pattern, mode types.Mode) (backend.DB, error) {
	if !mode.Valid() {
		return nil, backend.StatusInvalid
	}
	if len(patterns) == 0 {
		return nil, &types.CompileError{Message: "no patterns provided", Expression: -1}
	}

	compiled := make([]*pattern, len(patterns))
	for i, p := range patterns {
		cp, err := b.compilePattern(p)
		if err != nil {
			return nil, &types.CompileError{Message: err.Error(), Expression: i}
		}
		compiled[i] = cp
	}

	return &database{
		backend:   b,
		mode:      mode,
		patterns:  compiled,
		prefilter: prefilter.New(patterns),
		features:  hostFeatures(),
	}, nil
}

// AllocScratch allocates scratch sized for db.
func (b *Backend) AllocScratch(db backend.DB) (backend.Scratch, error) {
	d, err := asDatabase(db)
	if err != nil {
		return nil, err
	}
	return &scratch{patterns: len(d.patterns)}, nil
}

// pattern is one compiled expression.
type pattern struct {
	src        types.Pattern
	re         *regexp2.Regexp
	utf8       bool
	single     bool
	allowEmpty bool
	lookaround bool // uses constructs outside RE2, such as lookahead
}

func (b *Backend) compilePattern(p *types.Pattern) (*pattern, error) {
	if p == nil {
		return nil, fmt.Errorf("pattern is nil")
	}

	var opts regexp2.RegexOptions
	if p.Flags.Has(types.Caseless) {
		opts |= regexp2.IgnoreCase
	}
	if p.Flags.Has(types.DotAll) {
		opts |= regexp2.Singleline
	}
	if p.Flags.Has(types.MultiLine) {
		opts |= regexp2.Multiline
	}

	// Try RE2 mode first, then the Perl-compatible dialect for features
	// such as lookaround.
	re, err := regexp2.Compile(p.Expression, regexp2.RE2|opts)
	if err != nil {
		re, err = regexp2.Compile(p.Expression, opts)
		if err != nil {
			return nil, fmt.Errorf("parse error: %w", err)
		}
	}
	re.MatchTimeout = b.timeout

	cp := &pattern{
		src:        *p,
		re:         re,
		utf8:       p.Flags.Has(types.UTF8),
		single:     p.Flags.Has(types.SingleMatch),
		allowEmpty: p.Flags.Has(types.AllowEmpty),
		lookaround: !isRE2(p.Expression),
	}

	if !cp.allowEmpty {
		if ok, err := re.MatchString(""); err == nil && ok {
			return nil, fmt.Errorf("pattern matches empty buffer; use the allowempty flag to enable support")
		}
	}
	return cp, nil
}

// isRE2 reports whether expr parses as RE2. Anything else may look past
// the end of its match.
func isRE2(expr string) bool {
	_, err := syntax.Parse(expr, syntax.Perl)
	return err == nil
}

func isTimeout(err error) bool {
	return err != nil && strings.Contains(err.Error(), "match timeout")
}
