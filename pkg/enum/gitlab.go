package enum

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabTokenEnv names the variable holding the GitLab API token.
const GitLabTokenEnv = "GITLAB_TOKEN"

// GitLabOptions configures GitLab access.
type GitLabOptions struct {
	Token   string
	BaseURL string // optional, defaults to gitlab.com
}

// GitLabEnumerator resolves "gitlab://namespace/project" to one project, or
// "gitlab://group" to every project of the group and its subgroups, then
// clones and enumerates them.
type GitLabEnumerator struct {
	client *gitlab.Client
	config Config
	opts   GitLabOptions
	path   string
	// History enumerates every commit of every project.
	History bool
	// CommitRef selects the commit to enumerate in every project (defaults
	// to the tip of the default branch).
	CommitRef string
}

// NewGitLabEnumerator parses a gitlab:// URL and creates the API client.
func NewGitLabEnumerator(config Config, rawURL string, opts GitLabOptions) (*GitLabEnumerator, error) {
	path, ok := strings.CutPrefix(rawURL, "gitlab://")
	path = strings.Trim(path, "/")
	if !ok || path == "" {
		return nil, fmt.Errorf("expected gitlab://group or gitlab://namespace/project, got %q", rawURL)
	}

	var clientOpts []gitlab.ClientOptionFunc
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(opts.BaseURL))
	}
	client, err := gitlab.NewClient(opts.Token, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab client: %w", err)
	}

	return &GitLabEnumerator{client: client, config: config, opts: opts, path: path}, nil
}

func (e *GitLabEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	repos, err := e.ListProjectURLs(ctx)
	if err != nil {
		return err
	}

	clone := NewCloneEnumerator(repos, e.config, "oauth2", e.opts.Token)
	clone.History = e.History
	if e.CommitRef != "" {
		clone.CommitRef = e.CommitRef
	}
	clone.Shallow = e.CommitRef == "" && !e.History
	return clone.Enumerate(ctx, fn)
}

// ListProjectURLs returns clone URLs for the projects the URL names.
func (e *GitLabEnumerator) ListProjectURLs(ctx context.Context) ([]RepoInfo, error) {
	projects, err := e.listProjects(ctx)
	if err != nil {
		return nil, err
	}

	urls := make([]RepoInfo, 0, len(projects))
	for _, p := range projects {
		urls = append(urls, RepoInfo{Name: p.PathWithNamespace, CloneURL: p.HTTPURLToRepo})
	}
	return urls, nil
}

// listProjects looks the path up as a project first and as a group when no
// such project exists.
func (e *GitLabEnumerator) listProjects(ctx context.Context) ([]*gitlab.Project, error) {
	project, resp, err := e.client.Projects.GetProject(e.path, nil, gitlab.WithContext(ctx))
	if err == nil {
		return []*gitlab.Project{project}, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("getting project: %w", err)
	}

	opts := &gitlab.ListGroupProjectsOptions{
		ListOptions:      gitlab.ListOptions{PerPage: 100},
		IncludeSubGroups: gitlab.Ptr(true),
		Archived:         gitlab.Ptr(false),
	}
	var all []*gitlab.Project
	for {
		projects, resp, err := e.client.Groups.ListGroupProjects(e.path, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing group projects: %w", err)
		}
		all = append(all, projects...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}
