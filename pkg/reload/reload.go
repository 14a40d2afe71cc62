// Package reload keeps a block database in sync with a pattern file.
//
// A Reloader compiles the file once at construction and again whenever
// Reload is called or Watch sees the file change. Scans in flight finish on
// the database they started with; a failed reload keeps the previous
// database.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/praetorian-inc/scanrt/pkg/rule"
	"github.com/praetorian-inc/scanrt/pkg/scan"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// DefaultDebounce is how long Watch waits for a burst of file events to
// settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Option configures a Reloader.
type Option func(*config)

type config struct {
	scanOpts []scan.Option
	filter   rule.FilterConfig
	logger   *slog.Logger
	validate bool
	debounce time.Duration
}

// WithScanOptions passes options to every database compile.
func WithScanOptions(opts ...scan.Option) Option {
	return func(c *config) { c.scanOpts = append(c.scanOpts, opts...) }
}

// WithFilter restricts the loaded patterns.
func WithFilter(f rule.FilterConfig) Option {
	return func(c *config) { c.filter = f }
}

// WithLogger sets the logger for reload events.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithValidation toggles example checks before a new database is accepted.
// It is on by default.
func WithValidation(on bool) Option {
	return func(c *config) { c.validate = on }
}

// WithDebounce sets the quiet period Watch waits for.
func WithDebounce(d time.Duration) Option {
	return func(c *config) { c.debounce = d }
}

// Reloader owns the current database and a scratch pool sized for it.
type Reloader struct {
	path   string
	cfg    config
	loader *rule.Loader

	mu         sync.RWMutex // held for reading by scans, for writing by swaps
	db         *scan.BlockDatabase
	patterns   []*types.Pattern
	pool       *scan.ScratchPool
	generation uint64
	closed     bool
}

// New loads and compiles path.
func New(path string, opts ...Option) (*Reloader, error) {
	cfg := config{
		logger:   slog.Default(),
		validate: true,
		debounce: DefaultDebounce,
	}
	for _, o := range opts {
		o(&cfg)
	}

	r := &Reloader{
		path:   filepath.Clean(path),
		cfg:    cfg,
		loader: rule.NewLoader(),
	}

	db, patterns, err := r.build()
	if err != nil {
		return nil, err
	}
	pool, err := scan.NewScratchPool(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("allocating scratch: %w", err)
	}

	r.db, r.patterns, r.pool, r.generation = db, patterns, pool, 1
	return r, nil
}

func (r *Reloader) build() (*scan.BlockDatabase, []*types.Pattern, error) {
	patterns, err := r.loader.LoadFile(r.path)
	if err != nil {
		return nil, nil, err
	}
	patterns, err = rule.Filter(patterns, r.cfg.filter)
	if err != nil {
		return nil, nil, err
	}
	if len(patterns) == 0 {
		return nil, nil, fmt.Errorf("%s: no patterns left after filtering", r.path)
	}
	if r.cfg.validate {
		if err := rule.Validate(patterns, r.cfg.scanOpts...); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", r.path, err)
		}
	}

	db, err := scan.NewBlockDatabase(patterns, r.cfg.scanOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", r.path, err)
	}
	return db, patterns, nil
}

// Reload recompiles the pattern file and swaps it in. On error the current
// database stays active.
func (r *Reloader) Reload() error {
	db, patterns, err := r.build()
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		db.Close()
		return fmt.Errorf("reloader is closed")
	}
	if err := r.pool.Grow(db); err != nil {
		r.mu.Unlock()
		db.Close()
		return fmt.Errorf("growing scratch: %w", err)
	}
	old := r.db
	r.db, r.patterns = db, patterns
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	old.Close()
	r.cfg.logger.Info("patterns reloaded", "path", r.path, "patterns", len(patterns), "generation", gen)
	return nil
}

// Scan runs a block scan against the current database.
func (r *Reloader) Scan(data []byte, h scan.MatchHandler) (scan.Outcome, error) {
	out, _, err := r.ScanSnapshot(data, h)
	return out, err
}

// Snapshot identifies the pattern set one scan ran against.
type Snapshot struct {
	Patterns   []*types.Pattern
	Generation uint64
}

// ScanSnapshot is Scan, also returning the patterns and generation of the
// database that produced the matches. A concurrent reload cannot change them
// mid-scan.
func (r *Reloader) ScanSnapshot(data []byte, h scan.MatchHandler) (scan.Outcome, Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return scan.Completed, Snapshot{}, fmt.Errorf("reloader is closed")
	}
	snap := Snapshot{Patterns: r.patterns, Generation: r.generation}

	scratch, err := r.pool.Get()
	if err != nil {
		return scan.Completed, snap, err
	}
	defer r.pool.Put(scratch)

	out, err := r.db.Scan(data, scratch, h)
	return out, snap, err
}

// Patterns returns the patterns of the current database.
func (r *Reloader) Patterns() []*types.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.patterns
}

// Generation counts successful loads, starting at 1.
func (r *Reloader) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Watch reloads whenever the pattern file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are
// followed. Reload failures are logged and do not stop the watch.
func (r *Reloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watching %s: %w", r.path, err)
	}

	timer := time.NewTimer(r.cfg.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(r.cfg.debounce)
			}
		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.cfg.logger.WarnContext(ctx, "reload failed, keeping previous patterns", "path", r.path, "err", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.cfg.logger.WarnContext(ctx, "error watching pattern file", "path", r.path, "err", err)
		}
	}
}

// Close releases the database and scratch pool.
func (r *Reloader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	perr := r.pool.Close()
	if err := r.db.Close(); err != nil {
		return err
	}
	return perr
}
