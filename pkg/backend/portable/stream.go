package portable

import "github.com/praetorian-inc/scanrt/pkg/backend"

// stream carries state across feeds. It is not safe for concurrent use.
type stream struct {
	db     *database
	st     *state
	closed bool
}

var _ backend.Stream = (*stream)(nil)

func (s *stream) Scan(data []byte, sc backend.Scratch, fn backend.MatchFunc) error {
	if s.closed || s.db.closed.Load() {
		return backend.StatusInvalid
	}
	scr, err := s.db.acquire(sc)
	if err != nil {
		return err
	}
	defer scr.release()

	return s.st.scan(data, false, scr, fn)
}

func (s *stream) Close(sc backend.Scratch, fn backend.MatchFunc) error {
	if s.closed {
		return backend.StatusInvalid
	}
	if fn == nil {
		s.closed = true
		s.st.buf = nil
		return nil
	}
	if s.db.closed.Load() {
		return backend.StatusInvalid
	}
	scr, err := s.db.acquire(sc)
	if err != nil {
		return err
	}
	defer scr.release()

	s.closed = true
	err = s.st.scan(nil, true, scr, fn)
	s.st.buf = nil
	return err
}
