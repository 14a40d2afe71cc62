//go:build cgo && hyperscan

package hyperscan

import (
	"github.com/flier/gohs/hyperscan"
	"github.com/praetorian-inc/scanrt/pkg/backend"
)

// stream wraps a libhs stream. gohs binds the scratch and handler when the
// stream is opened, so the stream is opened on the first feed and every
// later call must pass the same scratch. The bridge's MatchFunc is swapped
// per call.
type stream struct {
	db      hyperscan.StreamDatabase
	hs      hyperscan.Stream
	scratch *scratch
	br      bridge
	closed  bool
}

var _ backend.Stream = (*stream)(nil)

func (s *stream) bind(sc backend.Scratch) error {
	scr, err := asScratch(sc)
	if err != nil {
		return err
	}
	if s.hs != nil {
		if scr != s.scratch {
			return backend.StatusInvalid
		}
		return nil
	}
	hs, err := s.db.Open(0, scr.s, onMatch, &s.br)
	if err != nil {
		return statusOf(err)
	}
	s.hs = hs
	s.scratch = scr
	return nil
}

func (s *stream) Scan(data []byte, sc backend.Scratch, fn backend.MatchFunc) error {
	if s.closed {
		return backend.StatusInvalid
	}
	if err := s.bind(sc); err != nil {
		return err
	}
	s.br.fn = fn
	err := s.hs.Scan(data)
	s.br.fn = nil
	return s.br.finish(err)
}

func (s *stream) Close(sc backend.Scratch, fn backend.MatchFunc) error {
	if s.closed {
		return backend.StatusInvalid
	}
	if s.hs == nil {
		// Never fed: nothing was allocated and nothing can match.
		s.closed = true
		return nil
	}
	if fn != nil {
		if scr, err := asScratch(sc); err != nil || scr != s.scratch {
			return backend.StatusInvalid
		}
	}
	s.closed = true
	s.br.fn = fn
	err := s.hs.Close()
	s.br.fn = nil
	return s.br.finish(err)
}
