package portable

import (
	"sync/atomic"

	"github.com/praetorian-inc/scanrt/pkg/backend"
)

// scratch holds the per-call buffers: the rune views of the window, the
// prefilter mask and the collected events.
type scratch struct {
	patterns int // largest pattern count this scratch was sized for
	inUse    atomic.Bool
	closed   atomic.Bool

	bytes   []rune
	runes   []rune
	offsets []int
	mask    []bool
	held    []int
	events  []event
}

var _ backend.Scratch = (*scratch)(nil)

func (s *scratch) Size() (int, error) {
	if s.closed.Load() {
		return 0, backend.StatusInvalid
	}
	size := 256 + s.patterns*32
	size += 4*cap(s.bytes) + 4*cap(s.runes) + 8*cap(s.offsets)
	size += cap(s.mask) + 8*cap(s.held) + 32*cap(s.events)
	return size, nil
}

func (s *scratch) Grow(db backend.DB) error {
	d, err := asDatabase(db)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return backend.StatusInvalid
	}
	if s.inUse.Load() {
		return backend.StatusScratchInUse
	}
	if n := len(d.patterns); n > s.patterns {
		s.patterns = n
	}
	return nil
}

func (s *scratch) Clone() (backend.Scratch, error) {
	if s.closed.Load() {
		return nil, backend.StatusInvalid
	}
	return &scratch{patterns: s.patterns}, nil
}

func (s *scratch) Close() error {
	if s.closed.Swap(true) {
		return backend.StatusInvalid
	}
	s.bytes, s.runes, s.offsets, s.mask, s.held, s.events = nil, nil, nil, nil, nil, nil
	return nil
}

func (s *scratch) acquire(patterns int) error {
	if s.closed.Load() || patterns > s.patterns {
		return backend.StatusInvalid
	}
	if !s.inUse.CompareAndSwap(false, true) {
		return backend.StatusScratchInUse
	}
	return nil
}

func (s *scratch) release() {
	s.inUse.Store(false)
}
