package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/clinical-rag/internal/chunking"
	"github.com/bull/clinical-rag/internal/pages"
	"github.com/bull/clinical-rag/internal/storage"
)

type lengthEmbedder struct {
	err error
}

// GenerateEmbeddings maps each text to (len, words, 1).
func (e *lengthEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(len(strings.Fields(t))), 1}
	}
	return out, nil
}

type staticSource struct {
	pages    []pages.Page
	err      error
	revision string
}

func (s *staticSource) LoadPages(context.Context) ([]pages.Page, error) { return s.pages, s.err }
func (s *staticSource) Describe() string                               { return "static" }
func (s *staticSource) Revision(context.Context) (string, error)       { return s.revision, nil }

type recordingMirror struct {
	synced *storage.Store
	err    error
}

func (m *recordingMirror) SyncStore(_ context.Context, store *storage.Store) (int, error) {
	m.synced = store
	if m.err != nil {
		return 0, m.err
	}
	return store.Len(), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPages() []pages.Page {
	long := func(s string) string { return s + strings.Repeat(" clinical detail", 10) }
	return []pages.Page{
		{Number: 1, Text: ""},
		{Number: 3, Text: long("Fever") + "\n\nshort\n\n" + long("Chills")},
		{Number: 7, Text: long("Rash")},
	}
}

func TestPipeline_Build(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bundle")
	mirror := &recordingMirror{}
	p := NewPipeline(nil, &lengthEmbedder{}, "length-model", mirror, quietLogger())

	result, err := p.Build(context.Background(), &staticSource{pages: testPages(), revision: "abc123"}, dir)
	require.NoError(t, err)

	assert.Equal(t, "static", result.Source)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 1, result.EmptyPages)
	assert.Equal(t, 3, result.TotalChunks)
	assert.Equal(t, 3, result.Dimension)
	assert.Equal(t, 3, result.Mirrored)
	assert.Equal(t, "abc123", result.SourceSHA)
	assert.NotEmpty(t, result.ManifestID)

	store, err := storage.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, "length-model", store.Manifest().EmbeddingModel)
	assert.Equal(t, "abc123", store.Manifest().SourceSHA)
	assert.Equal(t, chunking.DefaultMinLength, store.Manifest().MinLength)

	text, meta := store.Chunk(0)
	assert.True(t, strings.HasPrefix(text, "Fever"))
	assert.Equal(t, 3, meta.Page)
	_, meta = store.Chunk(2)
	assert.Equal(t, 7, meta.Page)

	require.NotNil(t, mirror.synced)
	assert.Equal(t, store.Manifest().ID, mirror.synced.Manifest().ID)
}

func TestPipeline_BuildWithoutMirror(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bundle")
	p := NewPipeline(chunking.NewChunker(chunking.WithMinLength(10)), &lengthEmbedder{}, "m", nil, quietLogger())

	result, err := p.Build(context.Background(), &staticSource{pages: testPages()}, dir)
	require.NoError(t, err)
	assert.Zero(t, result.Mirrored)

	_, err = p.Sync(context.Background(), nil)
	assert.Error(t, err)
}

func TestPipeline_BuildFailuresLeaveNoBundle(t *testing.T) {
	tests := []struct {
		name     string
		source   *staticSource
		embedder *lengthEmbedder
	}{
		{"load error", &staticSource{err: errors.New("no such file")}, &lengthEmbedder{}},
		{"no chunks", &staticSource{pages: []pages.Page{{Number: 1, Text: "too short"}}}, &lengthEmbedder{}},
		{"embedding error", &staticSource{pages: testPages()}, &lengthEmbedder{err: errors.New("quota")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "bundle")
			p := NewPipeline(nil, tt.embedder, "m", nil, quietLogger())

			_, err := p.Build(context.Background(), tt.source, dir)

			assert.ErrorIs(t, err, storage.ErrIngestion)
			_, statErr := os.Stat(dir)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestPipeline_MirrorFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bundle")
	p := NewPipeline(nil, &lengthEmbedder{}, "m", &recordingMirror{err: errors.New("qdrant down")}, quietLogger())

	_, err := p.Build(context.Background(), &staticSource{pages: testPages()}, dir)
	assert.ErrorContains(t, err, "qdrant down")

	// The local bundle is still usable.
	_, err = storage.Load(dir)
	assert.NoError(t, err)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"text": "x", "metadata": {"page": 4}}]`), 0o644))

	src := FileSource{Path: path}
	got, err := src.LoadPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got[0].Number)
	assert.Equal(t, "file:"+path, src.Describe())
}
