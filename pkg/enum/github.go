package enum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubTokenEnv names the variable holding the GitHub API token.
const GitHubTokenEnv = "GITHUB_TOKEN"

// GitHubOptions configures GitHub access.
type GitHubOptions struct {
	Token   string // API and clone token; empty means unauthenticated
	BaseURL string // API root for GitHub Enterprise, e.g. "https://ghe.example.com/api/v3/"
}

// GitHubEnumerator resolves "github://owner/repo" to one repository and
// "github://owner" to every repository of an organization or user, then
// clones and enumerates them.
type GitHubEnumerator struct {
	client *github.Client
	config Config
	opts   GitHubOptions
	owner  string
	repo   string
	// History enumerates every commit of every repository.
	History bool
	// CommitRef selects the commit to enumerate in every repository
	// (defaults to the tip of the default branch).
	CommitRef string
}

// NewGitHubEnumerator parses a github:// URL and creates the API client.
func NewGitHubEnumerator(config Config, rawURL string, opts GitHubOptions) (*GitHubEnumerator, error) {
	owner, repo, err := splitObjectURL(rawURL, "github://")
	if err != nil {
		return nil, err
	}
	repo = strings.TrimSuffix(repo, "/")
	if strings.Contains(repo, "/") {
		return nil, fmt.Errorf("expected github://owner or github://owner/repo, got %q", rawURL)
	}

	var hc *http.Client
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	client := github.NewClient(hc)
	if opts.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHubEnumerator{client: client, config: config, opts: opts, owner: owner, repo: repo}, nil
}

func (e *GitHubEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	repos, err := e.listRepos(ctx)
	if err != nil {
		return err
	}

	infos := make([]RepoInfo, 0, len(repos))
	for _, r := range repos {
		if r.GetArchived() && e.repo == "" {
			continue
		}
		infos = append(infos, RepoInfo{Name: r.GetFullName(), CloneURL: r.GetCloneURL()})
	}

	clone := NewCloneEnumerator(infos, e.config, "x-access-token", e.opts.Token)
	clone.History = e.History
	if e.CommitRef != "" {
		clone.CommitRef = e.CommitRef
	}
	clone.Shallow = e.CommitRef == "" && !e.History
	return clone.Enumerate(ctx, fn)
}

// listRepos returns the single repository, or the organization's
// repositories, falling back to the user's when no such organization
// exists.
func (e *GitHubEnumerator) listRepos(ctx context.Context) ([]*github.Repository, error) {
	if e.repo != "" {
		repo, _, err := e.client.Repositories.Get(ctx, e.owner, e.repo)
		if err != nil {
			return nil, fmt.Errorf("getting repository %s/%s: %w", e.owner, e.repo, err)
		}
		return []*github.Repository{repo}, nil
	}

	repos, err := e.listOrgRepos(ctx)
	var gerr *github.ErrorResponse
	if errors.As(err, &gerr) && gerr.Response != nil && gerr.Response.StatusCode == http.StatusNotFound {
		return e.listUserRepos(ctx)
	}
	return repos, err
}

func (e *GitHubEnumerator) listOrgRepos(ctx context.Context) ([]*github.Repository, error) {
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []*github.Repository
	for {
		repos, resp, err := e.client.Repositories.ListByOrg(ctx, e.owner, opts)
		if err != nil {
			return nil, fmt.Errorf("listing org repositories: %w", err)
		}
		all = append(all, repos...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (e *GitHubEnumerator) listUserRepos(ctx context.Context) ([]*github.Repository, error) {
	opts := &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []*github.Repository
	for {
		repos, resp, err := e.client.Repositories.List(ctx, e.owner, opts)
		if err != nil {
			return nil, fmt.Errorf("listing user repositories: %w", err)
		}
		all = append(all, repos...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}
