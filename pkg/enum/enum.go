// Package enum discovers inputs to scan: local files and directories,
// standard input, archive members, git trees and cloud objects. Inputs are
// opened lazily so large ones can be streamed.
package enum

import (
	"bytes"
	"context"
	"io"
)

// Input is one logical byte sequence to scan.
type Input struct {
	// Name identifies the input in reports, e.g. a path, "archive.7z!member"
	// or "s3://bucket/key".
	Name string
	// Size is the length in bytes, or -1 when unknown before reading.
	Size int64
	// Open returns a reader over the content. It may be called more than
	// once.
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Enumerator discovers inputs from a source.
type Enumerator interface {
	// Enumerate calls fn for every input, stopping at the first error.
	Enumerate(ctx context.Context, fn func(Input) error) error
}

// Config for enumeration.
type Config struct {
	// Root is the starting path for enumeration.
	Root string

	// IncludeHidden includes hidden files/directories (starting with .).
	IncludeHidden bool

	// MaxFileSize is the maximum input size to process (0 = no limit).
	MaxFileSize int64

	// FollowSymlinks follows symbolic links.
	FollowSymlinks bool

	// SkipBinary drops files with a NUL byte in their first 8KiB.
	SkipBinary bool

	// Extract enables member and text extraction by extension
	// (comma-separated: 7z,zip,pdf,docx,xlsx or 'all').
	Extract string
}

func memoryInput(name string, content []byte) Input {
	return Input{
		Name: name,
		Size: int64(len(content)),
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// ReadAll opens in and reads it completely.
func ReadAll(ctx context.Context, in Input) ([]byte, error) {
	rc, err := in.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
