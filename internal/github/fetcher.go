package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/clinical-rag/internal/pages"
)

// Source locates a page file inside a GitHub repository.
type Source struct {
	Owner string
	Repo  string
	Path  string // Pages JSON or PDF, relative to the repository root
	Ref   string // Branch, tag or commit; empty uses the default branch
}

// ParseSource parses "owner/repo/path/to/file[@ref]".
func ParseSource(s string) (Source, error) {
	var src Source
	if at := strings.LastIndex(s, "@"); at >= 0 {
		src.Ref = s[at+1:]
		s = s[:at]
	}
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Source{}, fmt.Errorf("invalid source %q, want owner/repo/path[@ref]", s)
	}
	src.Owner, src.Repo, src.Path = parts[0], parts[1], parts[2]
	return src, nil
}

// String formats the source the way ParseSource reads it.
func (s Source) String() string {
	out := path.Join(s.Owner, s.Repo, s.Path)
	if s.Ref != "" {
		out += "@" + s.Ref
	}
	return out
}

// Fetcher downloads the page source of the reference document from GitHub.
type Fetcher struct {
	client *Client
	source Source
}

// NewFetcher creates a new page fetcher
func NewFetcher(client *Client, source Source) *Fetcher {
	return &Fetcher{
		client: client,
		source: source,
	}
}

// Describe names the fetched source for logs.
func (f *Fetcher) Describe() string {
	return "github:" + f.source.String()
}

// LoadPages downloads the source file and decodes its pages.
// Files larger than the contents API limit are fetched through their download URL.
func (f *Fetcher) LoadPages(ctx context.Context) ([]pages.Page, error) {
	var opts *github.RepositoryContentGetOptions
	if f.source.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: f.source.Ref}
	}

	rc, _, err := f.client.Repositories.DownloadContents(ctx, f.source.Owner, f.source.Repo, f.source.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", f.source.Path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.source.Path, err)
	}

	return pages.Parse(f.source.Path, data)
}

// Revision returns the SHA of the most recent commit touching the source file.
func (f *Fetcher) Revision(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(
		ctx,
		f.source.Owner,
		f.source.Repo,
		&github.CommitsListOptions{
			SHA:  f.source.Ref,
			Path: f.source.Path,
			ListOptions: github.ListOptions{
				PerPage: 1,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.source.Path)
	}

	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}

	return *commits[0].SHA, nil
}

// maxHistoryPages bounds the history walk in CommitsSince.
const maxHistoryPages = 10

// ErrRevisionNotFound means the indexed commit is not in the source file's history.
var ErrRevisionNotFound = errors.New("revision not found in file history")

// CommitsSince counts the commits touching the source file that are newer than
// base on the source ref (or the default branch). Commits that change other
// files do not count. After maxHistoryPages pages the count so far is
// returned as a lower bound.
func (f *Fetcher) CommitsSince(ctx context.Context, base string) (int, error) {
	opts := &github.CommitsListOptions{
		SHA:         f.source.Ref,
		Path:        f.source.Path,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	count := 0
	for page := 0; page < maxHistoryPages; page++ {
		commits, resp, err := f.client.Repositories.ListCommits(ctx, f.source.Owner, f.source.Repo, opts)
		if err != nil {
			return 0, fmt.Errorf("failed to list commits: %w", err)
		}
		for _, c := range commits {
			if c.GetSHA() == base {
				return count, nil
			}
			count++
		}
		if resp.NextPage == 0 {
			return 0, fmt.Errorf("%w: %s in %s", ErrRevisionNotFound, base, f.source.Path)
		}
		opts.Page = resp.NextPage
	}
	return count, nil
}

