package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/praetorian-inc/scanrt/pkg/enum"
	"github.com/spf13/cobra"
)

// Input selection, shared by scan, vscan and stream.
var (
	targetGit           bool
	targetGitRef        string
	targetGitHistory    bool
	targetMaxFileSize   int64
	targetIncludeHidden bool
	targetSkipBinary    bool
	targetExtract       string

	s3Region   string
	s3Profile  string
	s3RoleARN  string
	s3Endpoint string

	githubAPIURL string
	gitlabURL    string
)

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&targetGit, "git", false, "Treat target as a git repository (scan the files of one commit)")
	cmd.Flags().StringVar(&targetGitRef, "git-ref", "", "Commit, branch or tag to scan with --git (default: HEAD)")
	cmd.Flags().BoolVar(&targetGitHistory, "git-history", false, "Scan every blob of every commit of git, GitHub and GitLab targets")
	cmd.Flags().Int64Var(&targetMaxFileSize, "max-file-size", 10*1024*1024, "Maximum input size to scan in bytes (0 = no limit)")
	cmd.Flags().BoolVar(&targetIncludeHidden, "include-hidden", false, "Include hidden files and directories")
	cmd.Flags().BoolVar(&targetSkipBinary, "skip-binary", false, "Skip files that look binary")
	cmd.Flags().StringVar(&targetExtract, "extract", "", "Extract archives and documents before scanning: 7z,zip,pdf,docx,xlsx or all")
	cmd.Flags().StringVar(&s3Region, "s3-region", "", "AWS region for s3:// targets")
	cmd.Flags().StringVar(&s3Profile, "s3-profile", "", "AWS shared config profile for s3:// targets")
	cmd.Flags().StringVar(&s3RoleARN, "s3-role-arn", "", "IAM role to assume for s3:// targets")
	cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL (path-style requests)")
	cmd.Flags().StringVar(&githubAPIURL, "github-api-url", "", "GitHub Enterprise API URL for github:// targets")
	cmd.Flags().StringVar(&gitlabURL, "gitlab-url", "", "GitLab instance URL for gitlab:// targets (default: gitlab.com)")
}

// createEnumerator picks the input source for each target. Local paths
// must exist. Several targets are enumerated in order, each input name once.
func createEnumerator(ctx context.Context, targets []string) (enum.Enumerator, error) {
	config := enum.Config{
		IncludeHidden: targetIncludeHidden,
		MaxFileSize:   targetMaxFileSize,
		SkipBinary:    targetSkipBinary,
		Extract:       targetExtract,
	}
	opts := enum.TargetOptions{
		Git:        targetGit,
		GitRef:     targetGitRef,
		GitHistory: targetGitHistory,
		S3: enum.S3Options{
			Region:   s3Region,
			Profile:  s3Profile,
			RoleARN:  s3RoleARN,
			Endpoint: s3Endpoint,
		},
		AzureCS: os.Getenv(enum.AzureConnectionStringEnv),
		GitHub: enum.GitHubOptions{
			Token:   os.Getenv(enum.GitHubTokenEnv),
			BaseURL: githubAPIURL,
		},
		GitLab: enum.GitLabOptions{
			Token:   os.Getenv(enum.GitLabTokenEnv),
			BaseURL: gitlabURL,
		},
	}

	enumerators := make([]enum.Enumerator, 0, len(targets))
	for _, target := range targets {
		if target != "-" && !isRemote(target) {
			if _, err := os.Stat(target); err != nil {
				return nil, fmt.Errorf("target does not exist: %s", target)
			}
		}
		e, err := enum.ForTarget(ctx, target, config, opts)
		if err != nil {
			return nil, err
		}
		enumerators = append(enumerators, e)
	}
	if len(enumerators) == 1 {
		return enumerators[0], nil
	}
	return enum.NewCombinedEnumerator(enumerators...), nil
}

func isRemote(target string) bool {
	for _, scheme := range []string{"s3://", "azblob://", "github://", "gitlab://"} {
		if strings.HasPrefix(target, scheme) {
			return true
		}
	}
	return false
}
