package enum

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// blobEntry is a distinct blob and the first path it was seen at.
type blobEntry struct {
	hash string
	path string
}

func gitBinaryAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// enumerateHistoryNative lists blobs with "git rev-list --all --objects",
// then streams their content through one "git cat-file --batch".
func (e *GitEnumerator) enumerateHistoryNative(ctx context.Context, fn func(Input) error) error {
	blobs, err := e.collectBlobEntries(ctx)
	if err != nil {
		return err
	}
	return e.streamBlobContents(ctx, blobs, fn)
}

func (e *GitEnumerator) collectBlobEntries(ctx context.Context) ([]blobEntry, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-list", "--all", "--objects")
	cmd.Dir = e.config.Root
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("git rev-list: pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("git rev-list: start: %w", err)
	}

	seen := make(map[string]bool)
	var blobs []blobEntry
	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		// "<40-hex> <path>" for blobs and subtrees; commits and root trees
		// carry no path.
		hash, path, ok := strings.Cut(sc.Text(), " ")
		if !ok || len(hash) != 40 || seen[hash] {
			continue
		}
		seen[hash] = true
		blobs = append(blobs, blobEntry{hash: hash, path: path})
	}
	if err := sc.Err(); err != nil {
		_ = cmd.Wait()
		return nil, fmt.Errorf("git rev-list: scan: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("git rev-list: %w", err)
	}
	return blobs, nil
}

func (e *GitEnumerator) streamBlobContents(ctx context.Context, blobs []blobEntry, fn func(Input) error) (err error) {
	if len(blobs) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "cat-file", "--batch")
	cmd.Dir = e.config.Root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("git cat-file: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("git cat-file: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("git cat-file: start: %w", err)
	}
	defer func() {
		stdin.Close()
		werr := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case err == nil && werr != nil:
			err = fmt.Errorf("git cat-file: %w", werr)
		}
	}()

	r := bufio.NewReaderSize(stdout, 256*1024)
	// One request, one response: writes and reads alternate so neither
	// pipe fills up.
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(stdin, blob.hash); err != nil {
			return fmt.Errorf("git cat-file: write: %w", err)
		}

		// "<hash> <type> <size>" or "<hash> missing"
		header, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("git cat-file: read header: %w", err)
		}
		parts := strings.Fields(header)
		if len(parts) < 3 {
			continue
		}
		size, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return fmt.Errorf("git cat-file: parse size %q: %w", parts[2], err)
		}

		skip := parts[1] != "blob" || e.config.MaxFileSize > 0 && size > e.config.MaxFileSize
		if skip {
			if _, err := io.CopyN(io.Discard, r, size+1); err != nil {
				return fmt.Errorf("git cat-file: discard %s: %w", blob.hash, err)
			}
			continue
		}

		content := make([]byte, size+1)
		if _, err := io.ReadFull(r, content); err != nil {
			return fmt.Errorf("git cat-file: read content: %w", err)
		}
		content = content[:size]
		if e.config.SkipBinary && isBinary(content) {
			continue
		}

		if err := fn(memoryInput(blob.path+"#"+blob.hash[:12], content)); err != nil {
			return err
		}
	}
	return nil
}
