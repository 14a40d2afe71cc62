package scan

import (
	"sync"
	"sync/atomic"

	"github.com/praetorian-inc/scanrt/pkg/backend"
)

// Scratch is per-call working memory for one backend. A Scratch may serve
// any database it was allocated or grown for, but only one call at a time:
// concurrent scans need their own, obtained with Clone or a ScratchPool.
type Scratch struct {
	backend string
	s       backend.Scratch
	inUse   atomic.Bool
	closed  atomic.Bool
	gen     uint64 // ScratchPool generation
}

// AllocScratch allocates scratch sized for db.
func AllocScratch(db Database) (*Scratch, error) {
	const op = "alloc scratch"
	d := db.core()
	leave, err := d.enter(op)
	if err != nil {
		return nil, err
	}
	defer leave()
	s, err := d.cfg.backend.AllocScratch(d.db)
	if err != nil {
		return nil, translate(op, err)
	}
	return &Scratch{backend: d.cfg.backend.Name(), s: s}, nil
}

// Grow enlarges the scratch so it can also serve db. It never shrinks.
func (s *Scratch) Grow(db Database) error {
	const op = "grow scratch"
	d := db.core()
	leave, err := d.enter(op)
	if err != nil {
		return err
	}
	defer leave()
	if err := s.check(op, d); err != nil {
		return err
	}
	if !s.inUse.CompareAndSwap(false, true) {
		return &Error{Op: op, Kind: KindScratchInUse, Code: int(backend.StatusScratchInUse)}
	}
	defer s.inUse.Store(false)
	return translate(op, s.s.Grow(d.db))
}

// Clone returns an independent scratch serving the same databases.
func (s *Scratch) Clone() (*Scratch, error) {
	const op = "clone scratch"
	if s.closed.Load() {
		return nil, newError(op, KindInvalidState, "scratch is closed")
	}
	c, err := s.s.Clone()
	if err != nil {
		return nil, translate(op, err)
	}
	return &Scratch{backend: s.backend, s: c}, nil
}

// Size returns the scratch size in bytes.
func (s *Scratch) Size() (int, error) {
	const op = "scratch size"
	if s.closed.Load() {
		return 0, newError(op, KindInvalidState, "scratch is closed")
	}
	n, err := s.s.Size()
	return n, translate(op, err)
}

// Close frees the scratch. It must not be in use.
func (s *Scratch) Close() error {
	const op = "close scratch"
	if s.inUse.Load() {
		return &Error{Op: op, Kind: KindScratchInUse, Code: int(backend.StatusScratchInUse)}
	}
	if s.closed.Swap(true) {
		return newError(op, KindInvalidState, "scratch already closed")
	}
	return translate(op, s.s.Close())
}

func (s *Scratch) check(op string, d *database) error {
	if s == nil || s.s == nil {
		return newError(op, KindInvalidArgument, "nil scratch")
	}
	if s.closed.Load() {
		return newError(op, KindInvalidState, "scratch is closed")
	}
	if s.backend != d.cfg.backend.Name() {
		return newError(op, KindInvalidArgument, "scratch belongs to backend %q, database to %q",
			s.backend, d.cfg.backend.Name())
	}
	return nil
}

// acquire marks the scratch in use for one call. Detection of concurrent
// use is best effort and not a synchronization primitive.
func (s *Scratch) acquire(op string, d *database) (func(), error) {
	if err := s.check(op, d); err != nil {
		return nil, err
	}
	if !s.inUse.CompareAndSwap(false, true) {
		return nil, &Error{Op: op, Kind: KindScratchInUse, Code: int(backend.StatusScratchInUse)}
	}
	return func() { s.inUse.Store(false) }, nil
}

// ScratchPool hands out clones of a prototype scratch to concurrent
// scanners.
type ScratchPool struct {
	mu    sync.RWMutex
	proto *Scratch
	gen   uint64
	pool  sync.Pool
}

// NewScratchPool allocates a prototype scratch for db.
func NewScratchPool(db Database) (*ScratchPool, error) {
	proto, err := AllocScratch(db)
	if err != nil {
		return nil, err
	}
	return &ScratchPool{proto: proto}, nil
}

// Get returns a pooled scratch or a new clone of the prototype.
func (p *ScratchPool) Get() (*Scratch, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for {
		s, ok := p.pool.Get().(*Scratch)
		if !ok {
			break
		}
		if s.gen == p.gen {
			return s, nil
		}
	}
	s, err := p.proto.Clone()
	if err != nil {
		return nil, err
	}
	s.gen = p.gen
	return s, nil
}

// Put returns s to the pool. Scratch from before the last Grow is dropped.
func (p *ScratchPool) Put(s *Scratch) {
	if s == nil || s.closed.Load() {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s.gen == p.gen {
		p.pool.Put(s)
	}
}

// Grow enlarges the prototype for db. Scratch handed out earlier keeps its
// size and is dropped when put back.
func (p *ScratchPool) Grow(db Database) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.proto.Grow(db); err != nil {
		return err
	}
	p.gen++
	return nil
}

// Close frees the prototype.
func (p *ScratchPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proto.Close()
}
