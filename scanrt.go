// Package scanrt scans data against many regular expressions at once.
//
// A Scanner compiles its patterns once and can then be shared by any number
// of goroutines. Buffers are scanned in block mode, readers in streaming
// mode. For vectored scans, explicit scratch management or a custom match
// handler, use package scan directly.
//
// # Basic Usage
//
//	scanner, err := scanrt.NewScanner()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Close()
//
//	matches, err := scanner.ScanString("ssn: 123-45-6789")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, m := range matches {
//	    fmt.Printf("%s at %d-%d\n", m.Pattern.Label(), m.From, m.To)
//	}
package scanrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/rule"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
	"go.opentelemetry.io/otel/metric"
)

// Re-exported so callers can import just this package.
type (
	// Pattern is one expression with its ID and flags.
	Pattern = types.Pattern

	// MatchEvent is a raw match: pattern ID and byte offsets.
	MatchEvent = types.MatchEvent

	// Error is the error type of every scan operation.
	Error = scan.Error
)

// Match is a match resolved to its pattern.
type Match struct {
	Pattern *Pattern
	From    uint64
	To      uint64
	// Snippet holds the matched bytes. It is nil for ScanReader matches.
	Snippet []byte
}

// Scanner scans with a fixed set of patterns.
type Scanner struct {
	config   *scannerConfig
	byID     map[uint32]*Pattern
	block    *scan.BlockDatabase
	pool     *scan.ScratchPool
	mu       sync.RWMutex
	closed   bool
	streamMu sync.Mutex
	stream   *scan.StreamingDatabase
	streamSc *scan.ScratchPool
}

type scannerConfig struct {
	patterns []*Pattern
	scanOpts []scan.Option
}

// Option configures a Scanner.
type Option func(*scannerConfig)

// WithPatterns uses patterns instead of the builtin ones.
func WithPatterns(patterns []*Pattern) Option {
	return func(c *scannerConfig) {
		c.patterns = patterns
	}
}

// WithBackend selects the matching backend.
func WithBackend(b backend.Backend) Option {
	return func(c *scannerConfig) {
		c.scanOpts = append(c.scanOpts, scan.WithBackend(b))
	}
}

// WithLogger sets the logger of the runtime.
func WithLogger(l *slog.Logger) Option {
	return func(c *scannerConfig) {
		c.scanOpts = append(c.scanOpts, scan.WithLogger(l))
	}
}

// WithMeterProvider records scan metrics with mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *scannerConfig) {
		c.scanOpts = append(c.scanOpts, scan.WithMeterProvider(mp))
	}
}

// NewScanner compiles the builtin patterns, or those given with
// WithPatterns, into a block database.
func NewScanner(opts ...Option) (*Scanner, error) {
	config := &scannerConfig{}
	for _, opt := range opts {
		opt(config)
	}

	if config.patterns == nil {
		patterns, err := LoadBuiltinPatterns()
		if err != nil {
			return nil, err
		}
		config.patterns = patterns
	}

	db, err := scan.NewBlockDatabase(config.patterns, config.scanOpts...)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}
	pool, err := scan.NewScratchPool(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("allocating scratch: %w", err)
	}

	byID := make(map[uint32]*Pattern, len(config.patterns))
	for _, p := range config.patterns {
		byID[p.ID] = p
	}
	return &Scanner{config: config, byID: byID, block: db, pool: pool}, nil
}

// ScanString scans content and returns all matches.
func (s *Scanner) ScanString(content string) ([]*Match, error) {
	return s.ScanBytes([]byte(content))
}

// ScanBytes scans content as one block and returns all matches in the order
// they were reported.
func (s *Scanner) ScanBytes(content []byte) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("scanner is closed")
	}

	sc, err := s.pool.Get()
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(sc)

	var events []MatchEvent
	if _, err := s.block.Scan(content, sc, scan.Collect(&events)); err != nil {
		return nil, err
	}
	matches := s.resolve(events)
	for i, ev := range events {
		matches[i].Snippet = ev.Slice(content)
	}
	return matches, nil
}

// ScanFile reads and scans a file.
func (s *Scanner) ScanFile(path string) ([]*Match, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return s.ScanBytes(content)
}

// ScanReader streams r through a streaming database, compiled on first use,
// so input of any size is scanned in bounded memory.
func (s *Scanner) ScanReader(ctx context.Context, r io.Reader) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("scanner is closed")
	}

	db, pool, err := s.streaming()
	if err != nil {
		return nil, err
	}
	sc, err := pool.Get()
	if err != nil {
		return nil, err
	}
	defer pool.Put(sc)

	var events []MatchEvent
	if _, err := db.ScanReader(ctx, r, sc, scan.Collect(&events)); err != nil {
		return nil, err
	}
	return s.resolve(events), nil
}

func (s *Scanner) streaming() (*scan.StreamingDatabase, *scan.ScratchPool, error) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stream != nil {
		return s.stream, s.streamSc, nil
	}

	db, err := scan.NewStreamingDatabase(s.config.patterns, s.config.scanOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling streaming database: %w", err)
	}
	pool, err := scan.NewScratchPool(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("allocating scratch: %w", err)
	}
	s.stream, s.streamSc = db, pool
	return db, pool, nil
}

func (s *Scanner) resolve(events []MatchEvent) []*Match {
	matches := make([]*Match, len(events))
	for i, ev := range events {
		p, ok := s.byID[ev.ID]
		if !ok {
			p = &Pattern{ID: ev.ID}
		}
		matches[i] = &Match{Pattern: p, From: ev.From, To: ev.To}
	}
	return matches
}

// Close releases the databases and scratch space. Always call Close when
// done with the scanner.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := errors.Join(s.pool.Close(), s.block.Close())
	if s.stream != nil {
		err = errors.Join(err, s.streamSc.Close(), s.stream.Close())
	}
	return err
}

// PatternCount returns the number of compiled patterns.
func (s *Scanner) PatternCount() int {
	return len(s.config.patterns)
}

// Patterns returns a copy of the compiled patterns.
func (s *Scanner) Patterns() []*Pattern {
	patterns := make([]*Pattern, len(s.config.patterns))
	copy(patterns, s.config.patterns)
	return patterns
}

// LoadPatternsFromFile loads patterns from a YAML or JSON file, for use with
// WithPatterns.
func LoadPatternsFromFile(path string) ([]*Pattern, error) {
	return rule.NewLoader().LoadFile(path)
}

// LoadBuiltinPatterns returns the builtin patterns.
func LoadBuiltinPatterns() ([]*Pattern, error) {
	patterns, err := rule.NewLoader().LoadBuiltin()
	if err != nil {
		return nil, fmt.Errorf("loading builtin patterns: %w", err)
	}
	return patterns, nil
}
