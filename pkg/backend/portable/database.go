package portable

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/prefilter"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// database is immutable after Compile and safe for concurrent scans.
type database struct {
	backend   *Backend
	mode      types.Mode
	patterns  []*pattern
	prefilter *prefilter.Prefilter
	features  []string
	closed    atomic.Bool
}

var _ backend.DB = (*database)(nil)

func asDatabase(db backend.DB) (*database, error) {
	d, ok := db.(*database)
	if !ok || d == nil || d.closed.Load() {
		return nil, backend.StatusInvalid
	}
	return d, nil
}

func (d *database) Mode() types.Mode { return d.mode }

// Size approximates the memory held by the compiled patterns.
func (d *database) Size() (int, error) {
	if d.closed.Load() {
		return 0, backend.StatusInvalid
	}
	size := 64
	for _, p := range d.patterns {
		size += 128 + 4*len(p.src.Expression)
		for _, kw := range p.src.Keywords {
			size += len(kw)
		}
	}
	return size, nil
}

// Info describes the database in the form
// "Version: X.Y.Z Features: F Mode: M".
func (d *database) Info() (string, error) {
	if d.closed.Load() {
		return "", backend.StatusInvalid
	}
	return fmt.Sprintf("Version: %s Features: %s Mode: %s",
		Version, strings.Join(d.features, ""), d.mode), nil
}

func (d *database) ScanBlock(data []byte, sc backend.Scratch, fn backend.MatchFunc) error {
	if err := d.check(types.ModeBlock); err != nil {
		return err
	}
	s, err := d.acquire(sc)
	if err != nil {
		return err
	}
	defer s.release()

	st := newState(d)
	return st.scan(data, true, s, fn)
}

func (d *database) ScanVector(data [][]byte, sc backend.Scratch, fn backend.MatchFunc) error {
	if err := d.check(types.ModeVectored); err != nil {
		return err
	}
	if data == nil {
		return backend.StatusInvalid
	}
	s, err := d.acquire(sc)
	if err != nil {
		return err
	}
	defer s.release()

	// Segments run through the stream machinery so matches may span them.
	st := newState(d)
	st.whole = true
	for _, seg := range data {
		if err := st.scan(seg, false, s, fn); err != nil {
			return err
		}
	}
	return st.scan(nil, true, s, fn)
}

func (d *database) OpenStream() (backend.Stream, error) {
	if err := d.check(types.ModeStreaming); err != nil {
		return nil, err
	}
	return &stream{db: d, st: newState(d)}, nil
}

func (d *database) Close() error {
	if d.closed.Swap(true) {
		return backend.StatusInvalid
	}
	return nil
}

func (d *database) check(mode types.Mode) error {
	if d.closed.Load() {
		return backend.StatusInvalid
	}
	if d.mode != mode {
		return backend.StatusDBMode
	}
	return nil
}

// acquire validates sc for this database and marks it in use.
func (d *database) acquire(sc backend.Scratch) (*scratch, error) {
	s, ok := sc.(*scratch)
	if !ok || s == nil {
		return nil, backend.StatusInvalid
	}
	if err := s.acquire(len(d.patterns)); err != nil {
		return nil, err
	}
	return s, nil
}
