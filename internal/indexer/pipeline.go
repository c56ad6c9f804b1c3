// Package indexer builds a persisted chunk store from the paginated reference
// document and optionally mirrors it into Qdrant.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/clinical-rag/internal/chunking"
	"github.com/bull/clinical-rag/internal/pages"
	"github.com/bull/clinical-rag/internal/storage"
)

// Source yields the pages of the reference document.
type Source interface {
	LoadPages(ctx context.Context) ([]pages.Page, error)
	Describe() string
}

// revisioned sources report the revision they were read at.
type revisioned interface {
	Revision(ctx context.Context) (string, error)
}

// Mirror receives a copy of a built store. QdrantStorage implements it.
type Mirror interface {
	SyncStore(ctx context.Context, store *storage.Store) (int, error)
}

// FileSource reads pages from a local JSON or PDF file.
type FileSource struct {
	Path string
}

// LoadPages reads the file, choosing the decoder by extension.
func (s FileSource) LoadPages(_ context.Context) ([]pages.Page, error) {
	return pages.Load(s.Path)
}

// Describe names the file for logs.
func (s FileSource) Describe() string {
	return "file:" + s.Path
}

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	Source      string
	TotalPages  int
	EmptyPages  int
	TotalChunks int
	Dimension   int
	ManifestID  string
	SourceSHA   string
	BundleDir   string
	Mirrored    int // Points written to the mirror, zero without one
	Duration    time.Duration
}

// Pipeline orchestrates the full indexing process from page loading to storage.
type Pipeline struct {
	chunker        *chunking.Chunker
	embedder       storage.Embedder
	embeddingModel string
	mirror         Mirror
	logger         *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
// mirror may be nil.
func NewPipeline(
	chunker *chunking.Chunker,
	embedder storage.Embedder,
	embeddingModel string,
	mirror Mirror,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if chunker == nil {
		chunker = chunking.NewChunker(chunking.WithLogger(logger))
	}
	return &Pipeline{
		chunker:        chunker,
		embedder:       embedder,
		embeddingModel: embeddingModel,
		mirror:         mirror,
		logger:         logger,
	}
}

// Build loads pages from src, chunks and embeds them, and saves the bundle to
// outDir. Nothing is written to outDir unless every chunk was embedded.
func (p *Pipeline) Build(ctx context.Context, src Source, outDir string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{Source: src.Describe(), BundleDir: outDir}

	// 1. Revision of the source, when it has one
	if r, ok := src.(revisioned); ok {
		sha, err := r.Revision(ctx)
		if err != nil {
			p.logger.Warn("Failed to resolve source revision", "source", result.Source, "error", err)
		} else {
			result.SourceSHA = sha
		}
	}
	p.logger.Info("Starting indexing", "source", result.Source, "revision", result.SourceSHA)

	// 2. Load pages
	pageList, err := src.LoadPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load pages: %w", storage.ErrIngestion, err)
	}
	result.TotalPages = len(pageList)
	for _, pg := range pageList {
		if pg.Text == "" {
			result.EmptyPages++
		}
	}
	p.logger.Info("Loaded pages", "count", result.TotalPages, "empty", result.EmptyPages)

	// 3. Chunk
	chunks := p.chunker.Split(pageList)
	result.TotalChunks = len(chunks)
	p.logger.Info("Chunked pages", "chunks", len(chunks), "min_length", p.chunker.MinLength())

	// 4. Embed and build the store
	store, err := storage.Build(ctx, chunks, p.embedder, storage.BuildOptions{
		EmbeddingModel: p.embeddingModel,
		MinLength:      p.chunker.MinLength(),
		SourceSHA:      result.SourceSHA,
	})
	if err != nil {
		return nil, err
	}
	result.Dimension = store.Dimension()
	result.ManifestID = store.Manifest().ID

	// 5. Persist
	if err := store.Save(outDir); err != nil {
		return nil, fmt.Errorf("save bundle: %w", err)
	}
	p.logger.Info("Saved bundle", "dir", outDir, "id", result.ManifestID, "dimension", result.Dimension)

	// 6. Mirror
	if p.mirror != nil {
		written, err := p.Sync(ctx, store)
		result.Mirrored = written
		if err != nil {
			return result, err
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"pages", result.TotalPages,
		"chunks", result.TotalChunks,
		"mirrored", result.Mirrored,
		"duration", result.Duration,
	)

	return result, nil
}

// Sync copies store into the mirror.
func (p *Pipeline) Sync(ctx context.Context, store *storage.Store) (int, error) {
	if p.mirror == nil {
		return 0, fmt.Errorf("no mirror configured")
	}
	written, err := p.mirror.SyncStore(ctx, store)
	if err != nil {
		return written, fmt.Errorf("sync mirror: %w", err)
	}
	p.logger.Info("Mirrored bundle", "points", written)
	return written, nil
}
