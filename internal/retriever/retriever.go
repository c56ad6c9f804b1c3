// Package retriever turns a question into page-cited context from the chunk store.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/bull/clinical-rag/internal/index"
	"github.com/bull/clinical-rag/internal/storage"
)

// DefaultK is the number of chunks returned when the caller does not choose.
const DefaultK = 5

// ErrInvalidK is returned for k < 1, before the query is embedded.
var ErrInvalidK = index.ErrInvalidK

// QueryEmbedder embeds query text with the model the store was built with.
type QueryEmbedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher returns the k nearest chunks to a query vector. Both the local
// store and the Qdrant mirror satisfy it.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]storage.Hit, error)
}

// Retriever is read-only after construction and safe for concurrent use.
type Retriever struct {
	embedder QueryEmbedder
	searcher Searcher
}

// New creates a Retriever.
func New(embedder QueryEmbedder, searcher Searcher) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher}
}

// Retrieve returns up to k hits ordered by ascending distance.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]storage.Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	vectors, err := r.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors, want 1", len(vectors))
	}

	hits, err := r.searcher.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// GetContext returns the formatted context block for query. An empty store
// yields an empty string.
func (r *Retriever) GetContext(ctx context.Context, query string, k int) (string, error) {
	if k == 0 {
		k = DefaultK
	}
	hits, err := r.Retrieve(ctx, query, k)
	if err != nil {
		return "", err
	}
	return FormatContext(hits), nil
}

// FormatContext renders hits as "[Source: Page N]" blocks separated by a blank line.
func FormatContext(hits []storage.Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[Source: Page %d]\n%s", h.Page, h.Text)
	}
	return strings.Join(blocks, "\n\n")
}
