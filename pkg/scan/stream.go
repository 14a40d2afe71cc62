package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/praetorian-inc/scanrt/pkg/backend"
)

// Stream is an open streaming session. Feed it with Scan and finish it with
// exactly one Close; matches that depend on end of input, such as patterns
// anchored with $, are only reported by Close.
//
// A Stream is sequential: it must not be fed from two goroutines at once.
type Stream struct {
	db     *StreamingDatabase
	st     backend.Stream
	leave  func() // releases the database hold taken by Open
	busy   atomic.Bool
	closed bool
	offset uint64
}

// Open starts a new stream. The database cannot be closed until the stream
// is.
func (d *StreamingDatabase) Open() (*Stream, error) {
	const op = "open stream"
	leave, err := d.enter(op)
	if err != nil {
		return nil, err
	}
	st, err := d.db.OpenStream()
	if err != nil {
		leave()
		return nil, translate(op, err)
	}
	return &Stream{db: d, st: st, leave: leave}, nil
}

// Offset returns the number of bytes fed so far.
func (s *Stream) Offset() uint64 {
	return s.offset
}

// Closed reports whether Close has completed.
func (s *Stream) Closed() bool {
	return s.closed
}

// Scan feeds the next chunk. Matches may span chunk boundaries. Terminate
// stops reporting for this chunk only; the stream stays open.
func (s *Stream) Scan(data []byte, scratch *Scratch, h MatchHandler) (Outcome, error) {
	const op = "stream scan"
	if err := s.enter(op); err != nil {
		return Completed, err
	}
	defer s.busy.Store(false)

	out, err := s.db.run(op, scratch, h, int64(len(data)), func(sc backend.Scratch, fn backend.MatchFunc) error {
		return s.st.Scan(data, sc, fn)
	})
	if err == nil {
		s.offset += uint64(len(data))
	}
	return out, err
}

// Close ends the stream. With a nil handler, pending end-of-input matches
// are discarded and scratch may be nil. A second Close, or Scan after Close,
// reports KindInvalidState.
func (s *Stream) Close(scratch *Scratch, h MatchHandler) error {
	_, err := s.close(scratch, h)
	return err
}

func (s *Stream) close(scratch *Scratch, h MatchHandler) (Outcome, error) {
	const op = "close stream"
	if err := s.enter(op); err != nil {
		return Completed, err
	}
	defer s.busy.Store(false)

	// Once the backend has closed its stream, the Stream is closed even if
	// a handler panic unwinds through here.
	var ended bool
	defer func() {
		if ended {
			s.closed = true
			s.leave()
		}
	}()

	if h == nil {
		if err := s.st.Close(nil, nil); err != nil {
			return Completed, translate(op, err)
		}
		ended = true
		return Completed, nil
	}

	return s.db.run(op, scratch, h, 0, func(sc backend.Scratch, fn backend.MatchFunc) error {
		err := s.st.Close(sc, fn)
		ended = err == nil || errors.Is(err, backend.StatusScanTerminated)
		return err
	})
}

func (s *Stream) enter(op string) error {
	if s.closed {
		return newError(op, KindInvalidState, "stream is closed")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return newError(op, KindInvalidState, "stream is in use by another call")
	}
	return nil
}

// ScanReader streams r through a new stream in chunks of the configured
// buffer size (DefaultBufferSize unless WithBufferSize was given), then
// closes it. The stream is always closed. Reading stops early when h
// returns Terminate or ctx is done.
func (d *StreamingDatabase) ScanReader(ctx context.Context, r io.Reader, scratch *Scratch, h MatchHandler) (Outcome, error) {
	s, err := d.Open()
	if err != nil {
		return Completed, err
	}
	abort := func() {
		if cerr := s.Close(nil, nil); cerr != nil {
			d.cfg.logger.Warn("failed to close stream", "error", cerr)
		}
	}

	buf := make([]byte, d.cfg.bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			abort()
			return Completed, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			out, err := s.Scan(buf[:n], scratch, h)
			if err != nil {
				abort()
				return out, err
			}
			if out == Terminated {
				abort()
				return Terminated, nil
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			abort()
			return Completed, fmt.Errorf("read: %w", rerr)
		}
	}
	return s.close(scratch, h)
}
