package storage

import "time"

// Artifact file names inside a bundle directory.
const (
	IndexFile    = "index.bin"
	ChunksFile   = "chunks.json"
	MetadataFile = "metadata.json"
	ManifestFile = "manifest.json"
)

// MetricL2 names the Euclidean distance used at build and query time.
const MetricL2 = "l2"

// DefaultCollectionName is the Qdrant collection mirroring a bundle.
const DefaultCollectionName = "clinical_chunks"

// ChunkMeta is the per-chunk metadata record, parallel to the chunk text array.
type ChunkMeta struct {
	Page    int    `json:"page"`
	Section string `json:"section,omitempty"`
}

// Manifest describes how a bundle was built.
type Manifest struct {
	ID             string    `json:"id"`              // UUID of this build
	EmbeddingModel string    `json:"embedding_model"` // Model that produced the vectors
	Dimension      int       `json:"dimension"`
	Count          int       `json:"count"`
	Metric         string    `json:"metric"`
	MinLength      int       `json:"min_length"`
	SourceSHA      string    `json:"source_sha,omitempty"` // Commit of the page source, when fetched from git
	BuiltAt        time.Time `json:"built_at"`
}

// Hit is one retrieval result: a chunk, its citation and its distance to the query.
type Hit struct {
	Position int
	Text     string
	Page     int
	Section  string
	Distance float64
}

// CollectionInfo contains Qdrant collection statistics.
type CollectionInfo struct {
	PointsCount uint64
}
