package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bull/clinical-rag/internal/chunking"
	"github.com/bull/clinical-rag/internal/index"
)

// Embedder produces one vector per input text.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// BuildOptions records build-time facts in the bundle manifest.
type BuildOptions struct {
	EmbeddingModel string
	MinLength      int
	SourceSHA      string
}

// Store is the persisted bundle: a flat L2 index plus the chunk text and page
// metadata arrays aligned with it by position. A Store is read-only once
// built or loaded and may be shared across goroutines.
type Store struct {
	index    *index.FlatL2
	texts    []string
	metas    []ChunkMeta
	manifest Manifest
}

// Build embeds every chunk and indexes the vectors in chunk order.
// It fails with ErrIngestion when there are no chunks or the embeddings are
// unusable (wrong count, empty or inconsistent dimension).
func Build(ctx context.Context, chunks []chunking.Chunk, embedder Embedder, opts BuildOptions) (*Store, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", ErrIngestion)
	}

	texts := make([]string, len(chunks))
	metas := make([]ChunkMeta, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		metas[i] = ChunkMeta{Page: c.Page, Section: c.Section}
	}

	vectors, err := embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed chunks: %w", ErrIngestion, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", ErrIngestion, len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty embedding vector", ErrIngestion)
	}
	idx := index.NewFlatL2(dim)
	if err := idx.Add(vectors...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	return &Store{
		index: idx,
		texts: texts,
		metas: metas,
		manifest: Manifest{
			ID:             uuid.New().String(),
			EmbeddingModel: opts.EmbeddingModel,
			Dimension:      dim,
			Count:          len(chunks),
			Metric:         MetricL2,
			MinLength:      opts.MinLength,
			SourceSHA:      opts.SourceSHA,
			BuiltAt:        time.Now().UTC(),
		},
	}, nil
}

// Len returns the number of stored chunks.
func (s *Store) Len() int { return len(s.texts) }

// Dimension returns the vector dimension fixed at build time.
func (s *Store) Dimension() int { return s.index.Dim() }

// Manifest returns the build description.
func (s *Store) Manifest() Manifest { return s.manifest }

// Chunk returns the text and metadata stored at position i.
func (s *Store) Chunk(i int) (string, ChunkMeta) { return s.texts[i], s.metas[i] }

// Vector returns the embedding stored at position i.
func (s *Store) Vector(i int) []float32 { return s.index.Vector(i) }

// Search returns the k chunks nearest to query, nearest first.
// k larger than Len returns all chunks; an empty store returns nothing.
func (s *Store) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		return nil, nil
	}
	neighbors, err := s.index.Search(query, k)
	if err != nil {
		if errors.Is(err, index.ErrDimensionMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
		}
		return nil, err
	}

	hits := make([]Hit, len(neighbors))
	for i, n := range neighbors {
		hits[i] = Hit{
			Position: n.Position,
			Text:     s.texts[n.Position],
			Page:     s.metas[n.Position].Page,
			Section:  s.metas[n.Position].Section,
			Distance: n.Distance,
		}
	}
	return hits, nil
}

// checkK rejects k < 1 the same way on every search backend.
func checkK(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: got %d", index.ErrInvalidK, k)
	}
	return nil
}

// Save writes the bundle into dir, creating it if needed.
// Each artifact is written to a temporary file and renamed into place.
func (s *Store) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	indexData, err := s.index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, IndexFile), indexData); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ChunksFile), s.texts); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), s.metas); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, ManifestFile), s.manifest)
}

// Load reads a bundle written by Save. It fails with ErrStoreCorrupt when an
// artifact is missing or unreadable, or the index, chunk and metadata
// collections disagree in length.
func Load(dir string) (*Store, error) {
	indexData, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read index: %w", ErrStoreCorrupt, err)
	}
	idx := &index.FlatL2{}
	if err := idx.UnmarshalBinary(indexData); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreCorrupt, err)
	}

	var texts []string
	if err := readJSON(filepath.Join(dir, ChunksFile), &texts); err != nil {
		return nil, err
	}
	var metas []ChunkMeta
	if err := readJSON(filepath.Join(dir, MetadataFile), &metas); err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, err
	}

	if len(texts) != len(metas) || len(texts) != idx.Len() {
		return nil, fmt.Errorf("%w: %d vectors, %d chunks, %d metadata records",
			ErrStoreCorrupt, idx.Len(), len(texts), len(metas))
	}
	if manifest.Count != idx.Len() || manifest.Dimension != idx.Dim() {
		return nil, fmt.Errorf("%w: manifest describes %d vectors of dimension %d, index holds %d of dimension %d",
			ErrStoreCorrupt, manifest.Count, manifest.Dimension, idx.Len(), idx.Dim())
	}
	for i, m := range metas {
		if m.Page < 1 {
			return nil, fmt.Errorf("%w: metadata record %d has page %d", ErrStoreCorrupt, i, m.Page)
		}
	}

	return &Store{index: idx, texts: texts, metas: metas, manifest: manifest}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStoreCorrupt, filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrStoreCorrupt, filepath.Base(path), err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
