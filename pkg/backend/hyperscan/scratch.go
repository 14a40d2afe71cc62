//go:build cgo && hyperscan

package hyperscan

import (
	"github.com/flier/gohs/hyperscan"
	"github.com/praetorian-inc/scanrt/pkg/backend"
)

type scratch struct {
	s *hyperscan.Scratch
}

var _ backend.Scratch = (*scratch)(nil)

func asScratch(sc backend.Scratch) (*scratch, error) {
	s, ok := sc.(*scratch)
	if !ok || s == nil || s.s == nil {
		return nil, backend.StatusInvalid
	}
	return s, nil
}

func (s *scratch) Size() (int, error) {
	if s.s == nil {
		return 0, backend.StatusInvalid
	}
	n, err := s.s.Size()
	return n, statusOf(err)
}

// Grow reallocates the scratch so it also fits db; libhs never shrinks it.
func (s *scratch) Grow(db backend.DB) error {
	d, ok := db.(*database)
	if !ok || s.s == nil {
		return backend.StatusInvalid
	}
	return statusOf(s.s.Realloc(d.db))
}

func (s *scratch) Clone() (backend.Scratch, error) {
	if s.s == nil {
		return nil, backend.StatusInvalid
	}
	c, err := s.s.Clone()
	if err != nil {
		return nil, statusOf(err)
	}
	return &scratch{s: c}, nil
}

func (s *scratch) Close() error {
	if s.s == nil {
		return backend.StatusInvalid
	}
	err := s.s.Free()
	s.s = nil
	return statusOf(err)
}
