package enum

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// RepoInfo holds basic repository information for clone-based scanning.
type RepoInfo struct {
	Name     string // full name, e.g. "kubernetes/kubernetes"
	CloneURL string
}

// CloneEnumerator clones each repository into memory and yields the files
// of one commit, named "<repo>/<path>@<short commit>".
type CloneEnumerator struct {
	repos  []RepoInfo
	config Config
	auth   *githttp.BasicAuth
	// CommitRef selects the commit to enumerate (defaults to HEAD).
	CommitRef string
	// History yields every blob of every commit, as GitEnumerator.History.
	History bool
	// Shallow fetches only the tip of the default branch. CommitRef must
	// then be HEAD and History unset.
	Shallow bool
	Logger  *slog.Logger
}

// NewCloneEnumerator creates a clone-based enumerator. user and token, when
// token is set, authenticate HTTPS clones.
func NewCloneEnumerator(repos []RepoInfo, config Config, user, token string) *CloneEnumerator {
	e := &CloneEnumerator{repos: repos, config: config, CommitRef: "HEAD", Logger: slog.Default()}
	if token != "" {
		e.auth = &githttp.BasicAuth{Username: user, Password: token}
	}
	return e
}

// Enumerate clones the repositories one at a time. A repository that fails
// to clone is logged and skipped.
func (e *CloneEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	for _, info := range e.repos {
		if err := ctx.Err(); err != nil {
			return err
		}

		repo, err := e.clone(ctx, info)
		if err != nil {
			e.Logger.Warn("skipping repository", "repo", info.Name, "error", err)
			continue
		}

		g := NewGitEnumerator(e.config)
		g.CommitRef = e.CommitRef
		g.History = e.History
		if err := g.walk(ctx, repo, info.Name+"/", fn); err != nil {
			return fmt.Errorf("enumerating %s: %w", info.Name, err)
		}
	}
	return nil
}

func (e *CloneEnumerator) clone(ctx context.Context, info RepoInfo) (*git.Repository, error) {
	opts := &git.CloneOptions{URL: info.CloneURL}
	if e.auth != nil {
		opts.Auth = e.auth
	}
	if e.Shallow {
		opts.Depth = 1
		opts.SingleBranch = true
	}

	e.Logger.Info("cloning repository", "repo", info.Name)
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", info.Name, err)
	}
	return repo, nil
}
