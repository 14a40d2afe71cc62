package enum

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitEnumerator enumerates the files of one commit's tree, or with History
// every blob reachable from any ref.
type GitEnumerator struct {
	config Config
	// CommitRef selects the commit to enumerate (defaults to HEAD).
	CommitRef string
	// History yields every distinct blob of every commit instead, named
	// "<path>#<short blob hash>" after the first path it was seen at.
	History bool
}

// NewGitEnumerator creates a new git enumerator.
func NewGitEnumerator(config Config) *GitEnumerator {
	return &GitEnumerator{
		config:    config,
		CommitRef: "HEAD",
	}
}

// Enumerate yields each distinct blob of the commit tree once, named
// "<path>@<short commit>". History walks use the git binary when it is
// installed and go-git otherwise.
func (e *GitEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	if e.History && gitBinaryAvailable() {
		return e.enumerateHistoryNative(ctx, fn)
	}
	repo, err := git.PlainOpen(e.config.Root)
	if err != nil {
		return fmt.Errorf("failed to open git repository: %w", err)
	}
	return e.walk(ctx, repo, "", fn)
}

// walk yields the blobs of repo, each name prefixed with prefix.
func (e *GitEnumerator) walk(ctx context.Context, repo *git.Repository, prefix string, fn func(Input) error) error {
	if e.History {
		return e.walkHistory(ctx, repo, prefix, fn)
	}

	ref, err := repo.ResolveRevision(plumbing.Revision(e.CommitRef))
	if err != nil {
		return fmt.Errorf("failed to resolve ref %s: %w", e.CommitRef, err)
	}

	commit, err := repo.CommitObject(*ref)
	if err != nil {
		return fmt.Errorf("failed to get commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("failed to get tree: %w", err)
	}

	short := commit.Hash.String()[:12]
	seen := make(map[plumbing.Hash]bool)

	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if seen[f.Hash] {
			return nil
		}
		seen[f.Hash] = true
		return e.yield(prefix+f.Name+"@"+short, f, fn)
	})
	if err != nil {
		return fmt.Errorf("failed to walk tree: %w", err)
	}
	return nil
}

func (e *GitEnumerator) walkHistory(ctx context.Context, repo *git.Repository, prefix string, fn func(Input) error) error {
	commits, err := repo.Log(&git.LogOptions{All: true})
	if err != nil {
		return fmt.Errorf("failed to walk history: %w", err)
	}
	defer commits.Close()

	seen := make(map[plumbing.Hash]bool)
	err = commits.ForEach(func(c *object.Commit) error {
		tree, err := c.Tree()
		if err != nil {
			return fmt.Errorf("failed to get tree of %s: %w", c.Hash, err)
		}
		return tree.Files().ForEach(func(f *object.File) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if seen[f.Hash] {
				return nil
			}
			seen[f.Hash] = true
			return e.yield(prefix+f.Name+"#"+f.Hash.String()[:12], f, fn)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to walk history: %w", err)
	}
	return nil
}

func (e *GitEnumerator) yield(name string, f *object.File, fn func(Input) error) error {
	if e.config.MaxFileSize > 0 && f.Size > e.config.MaxFileSize {
		return nil
	}
	if e.config.SkipBinary {
		binary, err := f.IsBinary()
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", f.Name, err)
		}
		if binary {
			return nil
		}
	}
	return fn(Input{
		Name: name,
		Size: f.Size,
		Open: func(context.Context) (io.ReadCloser, error) {
			return f.Reader()
		},
	})
}
