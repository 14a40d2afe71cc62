package scanner

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// maxSnippet bounds the snippet returned per block match.
const maxSnippet = 256

// Core owns the databases behind a long-lived scanning session: a block
// database for one-shot scans and a streaming database for streams the
// client opens, writes and closes by ID.
type Core struct {
	byID   map[uint32]*types.Pattern
	logger *slog.Logger

	block      *scan.BlockDatabase
	blockPool  *scan.ScratchPool
	stream     *scan.StreamingDatabase
	streamPool *scan.ScratchPool

	mu      sync.Mutex
	streams map[string]*openStream
	closed  bool
}

// openStream serializes the calls on one stream. The stream keeps one
// scratch from open to close, as some backends bind a stream to the first
// scratch that scans it.
type openStream struct {
	mu      sync.Mutex
	source  string
	s       *scan.Stream
	scratch *scan.Scratch
}

// NewCore compiles patterns in block and streaming mode.
func NewCore(patterns []*types.Pattern, logger *slog.Logger, opts ...scan.Option) (c *Core, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	c = &Core{
		byID:    make(map[uint32]*types.Pattern, len(patterns)),
		logger:  logger,
		streams: make(map[string]*openStream),
	}
	for _, p := range patterns {
		c.byID[p.ID] = p
	}
	defer func() {
		if err != nil {
			c.release()
		}
	}()

	if c.block, err = scan.NewBlockDatabase(patterns, opts...); err != nil {
		return nil, fmt.Errorf("compiling block database: %w", err)
	}
	if c.blockPool, err = scan.NewScratchPool(c.block); err != nil {
		return nil, err
	}
	if c.stream, err = scan.NewStreamingDatabase(patterns, opts...); err != nil {
		return nil, fmt.Errorf("compiling streaming database: %w", err)
	}
	if c.streamPool, err = scan.NewScratchPool(c.stream); err != nil {
		return nil, err
	}

	logger.Debug("scanner core ready", "patterns", len(patterns), "backend", c.block.Backend())
	return c, nil
}

// Backend names the backend the databases were compiled with.
func (c *Core) Backend() string {
	return c.block.Backend()
}

// Logger returns the logger the core reports to.
func (c *Core) Logger() *slog.Logger {
	return c.logger
}

// PatternCount returns the number of compiled patterns.
func (c *Core) PatternCount() int {
	return len(c.byID)
}

// Scan scans content as one block. maxMatches > 0 terminates the scan once
// that many matches were found.
func (c *Core) Scan(content []byte, source string, maxMatches int) (*ScanResult, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	sc, err := c.blockPool.Get()
	if err != nil {
		return nil, err
	}
	defer c.blockPool.Put(sc)

	var events []types.MatchEvent
	out, err := c.block.Scan(content, sc, collect(&events, maxMatches))
	if err != nil {
		return nil, err
	}
	return c.result(source, out, events, content), nil
}

// ScanBatch scans every item. Items that fail are counted and skipped.
func (c *Core) ScanBatch(items []ContentItem) (*BatchScanResult, error) {
	res := &BatchScanResult{Results: []ScanResult{}}
	for _, item := range items {
		r, err := c.Scan(item.bytes(), item.Source, 0)
		if err != nil {
			if errors.Is(err, errClosed) {
				return nil, err
			}
			c.logger.Warn("batch item failed", "source", item.Source, "error", err)
			res.Failed++
			continue
		}
		res.Results = append(res.Results, *r)
		res.Total += len(r.Matches)
	}
	return res, nil
}

// OpenStream opens a stream and returns its ID.
func (c *Core) OpenStream(source string) (string, error) {
	sc, err := c.streamPool.Get()
	if err != nil {
		return "", err
	}
	s, err := c.stream.Open()
	if err != nil {
		c.streamPool.Put(sc)
		return "", err
	}
	st := &openStream{source: source, s: s, scratch: sc}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.discard(st)
		return "", errClosed
	}
	id := uuid.NewString()
	c.streams[id] = st
	c.logger.Debug("stream opened", "id", id, "source", source)
	return id, nil
}

// WriteStream feeds data to a stream and returns the matches it completed.
// maxMatches > 0 terminates the write once that many matches were found;
// the stream stays open.
func (c *Core) WriteStream(id string, data []byte, maxMatches int) (*ScanResult, error) {
	st, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var events []types.MatchEvent
	out, err := st.s.Scan(data, st.scratch, collect(&events, maxMatches))
	if err != nil {
		return nil, err
	}
	return c.result(st.source, out, events, nil), nil
}

// CloseStream closes a stream and returns the matches only the end of data
// could confirm.
func (c *Core) CloseStream(id string) (*ScanResult, error) {
	c.mu.Lock()
	st, ok := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	var events []types.MatchEvent
	err := st.s.Close(st.scratch, collect(&events, 0))
	if !st.s.Closed() {
		c.discard(st)
	} else {
		c.streamPool.Put(st.scratch)
	}
	if err != nil {
		return nil, err
	}
	c.logger.Debug("stream closed", "id", id, "bytes", st.s.Offset())
	return c.result(st.source, scan.Completed, events, nil), nil
}

// Streams lists the open streams ordered by ID.
func (c *Core) Streams() []StreamInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StreamInfo, 0, len(c.streams))
	for _, id := range slices.Sorted(maps.Keys(c.streams)) {
		st := c.streams[id]
		st.mu.Lock()
		out = append(out, StreamInfo{ID: id, Source: st.source, Offset: st.s.Offset()})
		st.mu.Unlock()
	}
	return out
}

// Close discards open streams and releases the databases.
func (c *Core) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	for id, st := range streams {
		st.mu.Lock()
		err := c.discard(st)
		st.mu.Unlock()
		if err != nil {
			c.logger.Warn("failed to close stream", "id", id, "error", err)
		}
	}
	return c.release()
}

// discard closes st without reporting pending matches and returns its
// scratch to the pool.
func (c *Core) discard(st *openStream) error {
	err := st.s.Close(nil, nil)
	c.streamPool.Put(st.scratch)
	return err
}

func (c *Core) release() error {
	var errs []error
	if c.streamPool != nil {
		errs = append(errs, c.streamPool.Close())
	}
	if c.stream != nil {
		errs = append(errs, c.stream.Close())
	}
	if c.blockPool != nil {
		errs = append(errs, c.blockPool.Close())
	}
	if c.block != nil {
		errs = append(errs, c.block.Close())
	}
	return errors.Join(errs...)
}

var errClosed = errors.New("scanner core is closed")

func (c *Core) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return nil
}

func (c *Core) lookup(id string) (*openStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	st, ok := c.streams[id]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", id)
	}
	return st, nil
}

// result resolves events. data, when given, supplies snippets.
func (c *Core) result(source string, out scan.Outcome, events []types.MatchEvent, data []byte) *ScanResult {
	r := &ScanResult{Source: source, Outcome: out.String(), Matches: make([]Match, 0, len(events))}
	for _, ev := range events {
		m := Match{PatternID: ev.ID, From: ev.From, To: ev.To}
		if p, ok := c.byID[ev.ID]; ok {
			m.Pattern = p.Label()
		} else {
			m.Pattern = (&types.Pattern{ID: ev.ID}).Label()
		}
		if s := ev.Slice(data); s != nil {
			m.Snippet = string(s[:min(len(s), maxSnippet)])
		}
		r.Matches = append(r.Matches, m)
	}
	return r
}

func collect(dst *[]types.MatchEvent, limit int) scan.MatchHandler {
	return func(id uint32, from, to uint64, flags uint32) scan.Matching {
		*dst = append(*dst, types.MatchEvent{ID: id, From: from, To: to, Flags: flags})
		if limit > 0 && len(*dst) >= limit {
			return scan.Terminate
		}
		return scan.Continue
	}
}
