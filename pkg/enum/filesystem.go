package enum

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FilesystemEnumerator enumerates a single file or a directory tree.
type FilesystemEnumerator struct {
	config Config
}

// NewFilesystemEnumerator creates a new filesystem enumerator.
func NewFilesystemEnumerator(config Config) *FilesystemEnumerator {
	return &FilesystemEnumerator{config: config}
}

// Enumerate walks Root in lexical order. A .gitignore at Root is honored.
func (e *FilesystemEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	info, err := os.Stat(e.config.Root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return e.processFile(ctx, e.config.Root, info.Size(), fn)
	}

	var ignore *gitignore.GitIgnore
	gitignorePath := filepath.Join(e.config.Root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		ignore, _ = gitignore.CompileIgnoreFile(gitignorePath)
	}

	return filepath.Walk(e.config.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if info.IsDir() {
			if path != e.config.Root && !e.config.IncludeHidden && isHidden(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 && !e.config.FollowSymlinks {
			return nil
		}
		if !e.config.IncludeHidden && isHidden(info.Name()) {
			return nil
		}
		if e.config.MaxFileSize > 0 && info.Size() > e.config.MaxFileSize {
			return nil
		}

		if ignore != nil {
			relPath, err := filepath.Rel(e.config.Root, path)
			if err != nil {
				return err
			}
			if ignore.MatchesPath(relPath) {
				return nil
			}
		}

		return e.processFile(ctx, path, info.Size(), fn)
	})
}

// processFile yields path itself, its extracted members, or nothing for
// skipped binaries.
func (e *FilesystemEnumerator) processFile(ctx context.Context, path string, size int64, fn func(Input) error) error {
	if shouldExtract(e.config, path) {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}
		extracted, err := ExtractText(path, content)
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", path, err)
		}
		for _, ec := range extracted {
			if err := fn(memoryInput(path+"!"+ec.Name, ec.Content)); err != nil {
				return err
			}
		}
		return nil
	}

	if e.config.SkipBinary {
		binary, err := fileIsBinary(path)
		if err != nil {
			return err
		}
		if binary {
			return nil
		}
	}

	return fn(Input{
		Name: path,
		Size: size,
		Open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	})
}

// shouldExtract checks if a file type should be extracted based on config.
func shouldExtract(config Config, path string) bool {
	if config.Extract == "" || !CanExtract(path) {
		return false
	}
	if config.Extract == "all" {
		return true
	}
	ext := extension(path)
	for _, t := range strings.Split(strings.ToLower(config.Extract), ",") {
		if strings.TrimSpace(t) == ext {
			return true
		}
	}
	return false
}

// isHidden checks if a filename is hidden (starts with .).
// The special entries "." and ".." are NOT considered hidden.
func isHidden(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}

func fileIsBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 8192)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return isBinary(head[:n]), nil
}

// isBinary detects if content is binary by checking first 8KB for null bytes.
func isBinary(content []byte) bool {
	checkSize := len(content)
	if checkSize > 8192 {
		checkSize = 8192
	}
	return bytes.IndexByte(content[:checkSize], 0) != -1
}
