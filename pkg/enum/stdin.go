package enum

import (
	"context"
	"io"
	"os"
)

// ReaderEnumerator yields a single input backed by an already open reader,
// typically os.Stdin. The reader can only be consumed once.
type ReaderEnumerator struct {
	name string
	r    io.Reader
}

// NewStdinEnumerator reads standard input.
func NewStdinEnumerator() *ReaderEnumerator {
	return NewReaderEnumerator("-", os.Stdin)
}

// NewReaderEnumerator wraps r under name.
func NewReaderEnumerator(name string, r io.Reader) *ReaderEnumerator {
	return &ReaderEnumerator{name: name, r: r}
}

func (e *ReaderEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	return fn(Input{
		Name: e.name,
		Size: -1,
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(e.r), nil
		},
	})
}
