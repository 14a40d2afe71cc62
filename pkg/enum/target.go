package enum

import (
	"context"
	"strings"
)

// TargetOptions carries per-source settings for ForTarget.
type TargetOptions struct {
	// Git enumerates the HEAD tree of a repository instead of the working
	// directory.
	Git    bool
	GitRef string
	// GitHistory enumerates every blob of every commit, for local
	// repositories with Git set and for cloned ones.
	GitHistory bool
	S3         S3Options
	AzureCS    string // azure storage connection string
	GitHub     GitHubOptions
	GitLab     GitLabOptions
}

// ForTarget picks an enumerator for a command-line target: "-" for stdin,
// "s3://bucket/key", "s3://bucket/prefix/", "azblob://container/prefix",
// "github://owner[/repo]", "gitlab://group[/project]", or a local path.
// GitRef selects the commit of local repositories with Git set and of
// every cloned repository.
func ForTarget(ctx context.Context, target string, config Config, opts TargetOptions) (Enumerator, error) {
	config.Root = target
	switch {
	case target == "-":
		return NewStdinEnumerator(), nil
	case strings.HasPrefix(target, "s3://"):
		return NewS3Enumerator(ctx, config, target, opts.S3)
	case strings.HasPrefix(target, "azblob://"):
		return NewAzureBlobEnumerator(config, target, opts.AzureCS)
	case strings.HasPrefix(target, "github://"):
		e, err := NewGitHubEnumerator(config, target, opts.GitHub)
		if err != nil {
			return nil, err
		}
		e.CommitRef = opts.GitRef
		e.History = opts.GitHistory
		return e, nil
	case strings.HasPrefix(target, "gitlab://"):
		e, err := NewGitLabEnumerator(config, target, opts.GitLab)
		if err != nil {
			return nil, err
		}
		e.CommitRef = opts.GitRef
		e.History = opts.GitHistory
		return e, nil
	case opts.Git:
		g := NewGitEnumerator(config)
		if opts.GitRef != "" {
			g.CommitRef = opts.GitRef
		}
		g.History = opts.GitHistory
		return g, nil
	default:
		return NewFilesystemEnumerator(config), nil
	}
}
