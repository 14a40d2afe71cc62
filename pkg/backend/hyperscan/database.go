//go:build cgo && hyperscan

package hyperscan

import (
	"errors"
	"fmt"

	"github.com/flier/gohs/hyperscan"
	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

type database struct {
	db   hyperscan.Database
	mode types.Mode
}

var _ backend.DB = (*database)(nil)

func (d *database) Mode() types.Mode { return d.mode }

func (d *database) Size() (int, error) {
	n, err := d.db.Size()
	return n, statusOf(err)
}

func (d *database) Info() (string, error) {
	info, err := d.db.Info()
	if err != nil {
		return "", statusOf(err)
	}
	return fmt.Sprint(info), nil
}

func (d *database) Marshal() ([]byte, error) {
	data, err := d.db.Marshal()
	return data, statusOf(err)
}

func (d *database) Close() error {
	return statusOf(d.db.Close())
}

func (d *database) ScanBlock(data []byte, sc backend.Scratch, fn backend.MatchFunc) error {
	bdb, ok := d.db.(hyperscan.BlockDatabase)
	if !ok || d.mode != types.ModeBlock {
		return backend.StatusDBMode
	}
	s, err := asScratch(sc)
	if err != nil {
		return err
	}
	br := &bridge{fn: fn}
	err = bdb.Scan(data, s.s, onMatch, br)
	return br.finish(err)
}

func (d *database) ScanVector(data [][]byte, sc backend.Scratch, fn backend.MatchFunc) error {
	vdb, ok := d.db.(hyperscan.VectoredDatabase)
	if !ok || d.mode != types.ModeVectored {
		return backend.StatusDBMode
	}
	s, err := asScratch(sc)
	if err != nil {
		return err
	}
	br := &bridge{fn: fn}
	err = vdb.Scan(data, s.s, onMatch, br)
	return br.finish(err)
}

func (d *database) OpenStream() (backend.Stream, error) {
	sdb, ok := d.db.(hyperscan.StreamDatabase)
	if !ok || d.mode != types.ModeStreaming {
		return nil, backend.StatusDBMode
	}
	return &stream{db: sdb}, nil
}

// bridge carries the caller's MatchFunc through the libhs context pointer
// for the duration of one call.
type bridge struct {
	fn       backend.MatchFunc
	panicked any
}

var errStop = errors.New("stop")

func onMatch(id uint, from, to uint64, flags uint, ctx interface{}) (err error) {
	br := ctx.(*bridge)
	if br.fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			br.panicked = r
			err = errStop
		}
	}()
	if !br.fn(uint32(id), from, to, uint32(flags)) {
		return errStop
	}
	return nil
}

// finish re-raises a handler panic outside of the C frames and translates
// the scan result.
func (br *bridge) finish(err error) error {
	if br.panicked != nil {
		p := br.panicked
		br.panicked = nil
		panic(p)
	}
	return statusOf(err)
}
