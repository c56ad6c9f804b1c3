package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/clinical-rag/internal/answer"
	"github.com/bull/clinical-rag/internal/engine"
	ghclient "github.com/bull/clinical-rag/internal/github"
	"github.com/bull/clinical-rag/internal/storage"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20

	// staleAfterCommits triggers the stale warning in get_index_status.
	staleAfterCommits = 20
)

// Engine is the query surface the tools and HTTP handlers need.
// *engine.Engine implements it.
type Engine interface {
	Ask(ctx context.Context, question string) (answer.Answer, error)
	AskSymptoms(ctx context.Context, symptoms []string) (answer.Answer, error)
	Search(ctx context.Context, query string, k int) ([]storage.Hit, error)
	Status(ctx context.Context) engine.Status
	Health(ctx context.Context) error
	Backend() string
}

// makeAskHandler creates the ask_clinical_question tool handler.
// Provider failures are not tool errors: an exhausted fallback list still
// returns an answer with provenance "None".
func makeAskHandler(eng Engine) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		ans, err := eng.Ask(ctx, input.Question)
		if err != nil {
			if errors.Is(err, answer.ErrEmptyQuestion) {
				return nil, AskOutput{}, fmt.Errorf("question is required")
			}
			return nil, AskOutput{}, fmt.Errorf("failed to answer: %w", err)
		}

		attempts := make([]AttemptInfo, len(ans.Attempts))
		for i, a := range ans.Attempts {
			attempts[i] = AttemptInfo{Provider: a.Provider, Model: a.Model, Outcome: a.Outcome.String()}
		}
		return nil, AskOutput{
			Answer:     ans.Text,
			Provenance: ans.Provenance,
			Attempts:   attempts,
		}, nil
	}
}

// makeSearchHandler creates the search_reference tool handler.
// Returns the raw passages with their pages, nearest first, without calling
// any completion provider.
func makeSearchHandler(eng Engine) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		if input.Query == "" {
			return nil, SearchOutput{}, fmt.Errorf("query is required")
		}
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		maxResults = min(maxResults, maxMaxResults)

		hits, err := eng.Search(ctx, input.Query, maxResults)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(hits) == 0 {
			return nil, SearchOutput{
				Results: []SearchResult{},
				Message: "No passages found. The index is empty.",
			}, nil
		}

		results := make([]SearchResult, len(hits))
		for i, h := range hits {
			results[i] = SearchResult{
				Page:     h.Page,
				Section:  h.Section,
				Text:     h.Text,
				Distance: h.Distance,
			}
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// When the bundle records a source commit and a GitHub source is configured,
// staleness is reported as the number of commits the source has moved on.
func makeStatusHandler(
	eng Engine,
	ghClient *ghclient.Client,
	source *ghclient.Source,
) func(context.Context, *mcp.CallToolRequest, StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		s := eng.Status(ctx)

		providers := make([]ProviderInfo, len(s.Providers))
		for i, p := range s.Providers {
			providers[i] = ProviderInfo{Name: p.Name, Models: p.Models}
		}

		out := StatusOutput{
			ManifestID:     s.ManifestID,
			TotalChunks:    s.Chunks,
			Dimension:      s.Dimension,
			EmbeddingModel: s.EmbeddingModel,
			MinLength:      s.MinLength,
			BuiltAt:        s.BuiltAt.Format(time.RFC3339),
			SourceCommit:   s.SourceSHA,
			Backend:        s.Backend,
			MirrorPoints:   s.MirrorPoints,
			TopK:           s.TopK,
			Providers:      providers,
		}

		if s.SourceSHA != "" && ghClient != nil && source != nil {
			// If the GitHub API fails, leave CommitsBehind nil (not an error for the tool)
			if behind, err := commitsBehind(ctx, ghClient, *source, s.SourceSHA); err == nil {
				out.CommitsBehind = &behind
				if behind > staleAfterCommits {
					out.StaleWarning = fmt.Sprintf("Page file has %d commits since the index was built. Consider rebuilding.", behind)
				}
			}
		}

		return nil, out, nil
	}
}

// commitsBehind counts commits to the page file made after the indexed commit.
func commitsBehind(ctx context.Context, gh *ghclient.Client, source ghclient.Source, base string) (int, error) {
	return ghclient.NewFetcher(gh, source).CommitsSince(ctx, base)
}
