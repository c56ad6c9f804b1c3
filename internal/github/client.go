// Package github downloads reference pages from a GitHub repository and reports
// how far a built bundle lags behind its source.
package github

import (
	"context"
	"fmt"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// UserAgent identifies ingestion and staleness requests.
const UserAgent = "clinical-rag"

// Client is a GitHub API client that waits out rate limits instead of failing.
type Client struct {
	*github.Client
}

// NewClient creates a rate limited client. Without a token GitHub allows
// 60 requests per hour, which covers a single page file download.
func NewClient(_ context.Context, token string) (*Client, error) {
	// Sleeps through primary and secondary (abuse) limits
	waiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("rate limit transport: %w", err)
	}
	return wrap(github.NewClient(waiter), token), nil
}

func wrap(gh *github.Client, token string) *Client {
	gh.UserAgent = UserAgent
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{Client: gh}
}
