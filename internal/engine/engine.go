// Package engine assembles the query-time components from configuration.
//
// An Engine is opened once at startup and is read-only afterwards; every
// request handler shares the same instance.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/clinical-rag/internal/answer"
	"github.com/bull/clinical-rag/internal/config"
	"github.com/bull/clinical-rag/internal/embedding"
	"github.com/bull/clinical-rag/internal/provider"
	"github.com/bull/clinical-rag/internal/retriever"
	"github.com/bull/clinical-rag/internal/storage"
)

// probeText is embedded once at startup to check the query vector dimension.
const probeText = "dimension probe"

// Backend names where Search runs.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// ProviderStatus describes one configured fallback provider.
type ProviderStatus struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// Status describes the loaded bundle and the serving configuration.
type Status struct {
	ManifestID     string           `json:"manifest_id"`
	EmbeddingModel string           `json:"embedding_model"`
	Dimension      int              `json:"dimension"`
	Chunks         int              `json:"chunks"`
	MinLength      int              `json:"min_length"`
	SourceSHA      string           `json:"source_sha,omitempty"`
	BuiltAt        time.Time        `json:"built_at"`
	Backend        string           `json:"backend"`
	MirrorPoints   *uint64          `json:"mirror_points,omitempty"` // Qdrant point count when searching the mirror
	TopK           int              `json:"top_k"`
	Providers      []ProviderStatus `json:"providers"`
}

// Engine holds the loaded store, retriever and orchestrator.
type Engine struct {
	store        *storage.Store
	qdrant       *storage.QdrantStorage
	retriever    *retriever.Retriever
	orchestrator *answer.Orchestrator
	providers    []answer.Provider
	backend      string
	topK         int
	logger       *slog.Logger
}

// Options configures New.
type Options struct {
	TopK    int
	Backend string // Reported in Status; BackendLocal when empty
	Logger  *slog.Logger
}

// New builds an Engine from already constructed parts. It embeds a probe
// query and fails with storage.ErrDimensionMismatch when the query embedder
// disagrees with the store's dimension.
func New(
	ctx context.Context,
	store *storage.Store,
	embedder retriever.QueryEmbedder,
	searcher retriever.Searcher,
	providers []answer.Provider,
	opts Options,
) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = answer.DefaultTopK
	}
	backend := opts.Backend
	if backend == "" {
		backend = BackendLocal
	}

	if err := checkDimension(ctx, embedder, store.Dimension()); err != nil {
		return nil, err
	}

	r := retriever.New(embedder, searcher)
	return &Engine{
		store:        store,
		retriever:    r,
		orchestrator: answer.NewOrchestrator(r, providers, answer.WithTopK(topK), answer.WithLogger(logger)),
		providers:    providers,
		backend:      backend,
		topK:         topK,
		logger:       logger,
	}, nil
}

// Open loads the bundle named by cfg and connects the embedding and completion
// providers. With cfg.UseQdrant, Search runs against the Qdrant mirror.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.Load(cfg.BundleDir)
	if err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", cfg.BundleDir, err)
	}
	manifest := store.Manifest()
	logger.Info("Loaded bundle",
		"dir", cfg.BundleDir,
		"id", manifest.ID,
		"chunks", store.Len(),
		"dimension", store.Dimension(),
	)

	// Queries must be embedded with the build-time model.
	model := manifest.EmbeddingModel
	if model == "" {
		model = cfg.EmbeddingModel
	}
	if cfg.EmbeddingModel != "" && cfg.EmbeddingModel != model {
		logger.Warn("Ignoring configured embedding model, bundle was built with another",
			"configured", cfg.EmbeddingModel, "bundle", model)
	}
	client, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.EmbeddingAPIKey,
		BaseURL: cfg.EmbeddingBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, model, 0)

	providerConfigs, err := config.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	providers, err := BuildProviders(providerConfigs, logger)
	if err != nil {
		return nil, err
	}

	var searcher retriever.Searcher = store
	var qs *storage.QdrantStorage
	backend := BackendLocal
	if cfg.UseQdrant {
		qs, err = storage.NewQdrantStorage(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
		if err != nil {
			return nil, err
		}
		searcher = qs
		backend = BackendQdrant
	}

	e, err := New(ctx, store, embedder, searcher, providers, Options{
		TopK:    cfg.TopK,
		Backend: backend,
		Logger:  logger,
	})
	if err != nil {
		if qs != nil {
			qs.Close()
		}
		return nil, err
	}
	e.qdrant = qs
	return e, nil
}

// BuildProviders turns provider configuration into orchestrator providers.
// Providers without an API key in the environment are skipped.
func BuildProviders(configs []config.ProviderConfig, logger *slog.Logger) ([]answer.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]answer.Provider, 0, len(configs))
	for _, pc := range configs {
		key := pc.APIKey()
		if key == "" {
			logger.Warn("Skipping provider without API key", "provider", pc.Name, "env", pc.APIKeyEnv)
			continue
		}
		timeout, err := pc.AttemptTimeout()
		if err != nil {
			return nil, err
		}
		style := answer.StyleUserOnly
		if pc.SystemRole {
			style = answer.StyleSystemUser
		}
		out = append(out, answer.Provider{
			Name:   pc.Name,
			Models: pc.Models,
			Client: provider.NewChatClient(provider.ChatConfig{
				BaseURL:     pc.BaseURL,
				APIKey:      key,
				Headers:     pc.Headers,
				Temperature: pc.Temperature,
				Timeout:     timeout,
			}),
			Style:   style,
			Timeout: timeout,
		})
	}
	if len(out) == 0 {
		logger.Warn("No completion providers configured, every question will be answered as unavailable")
	}
	return out, nil
}

func checkDimension(ctx context.Context, embedder retriever.QueryEmbedder, want int) error {
	vectors, err := embedder.GenerateEmbeddings(ctx, []string{probeText})
	if err != nil {
		return fmt.Errorf("probe embedding: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != want {
		got := 0
		if len(vectors) == 1 {
			got = len(vectors[0])
		}
		return fmt.Errorf("%w: query embeddings have dimension %d, store has %d",
			storage.ErrDimensionMismatch, got, want)
	}
	return nil
}

// Ask answers question from the reference.
func (e *Engine) Ask(ctx context.Context, question string) (answer.Answer, error) {
	return e.orchestrator.Ask(ctx, question)
}

// AskSymptoms answers a symptom list as one question.
func (e *Engine) AskSymptoms(ctx context.Context, symptoms []string) (answer.Answer, error) {
	return e.orchestrator.AskSymptoms(ctx, symptoms)
}

// Search returns the k chunks nearest to query.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]storage.Hit, error) {
	if k == 0 {
		k = e.topK
	}
	return e.retriever.Retrieve(ctx, query, k)
}

// Health reports whether the search backend is reachable.
func (e *Engine) Health(ctx context.Context) error {
	if e.qdrant != nil {
		return e.qdrant.Health(ctx)
	}
	return nil
}

// Backend names where Search runs.
func (e *Engine) Backend() string {
	return e.backend
}

// Status describes the loaded bundle. When searching Qdrant it also counts
// the mirrored points; a failed count is logged and left out.
func (e *Engine) Status(ctx context.Context) Status {
	m := e.store.Manifest()
	providers := make([]ProviderStatus, len(e.providers))
	for i, p := range e.providers {
		providers[i] = ProviderStatus{Name: p.Name, Models: p.Models}
	}
	s := Status{
		ManifestID:     m.ID,
		EmbeddingModel: m.EmbeddingModel,
		Dimension:      e.store.Dimension(),
		Chunks:         e.store.Len(),
		MinLength:      m.MinLength,
		SourceSHA:      m.SourceSHA,
		BuiltAt:        m.BuiltAt,
		Backend:        e.backend,
		TopK:           e.topK,
		Providers:      providers,
	}
	if e.qdrant != nil {
		info, err := e.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			e.logger.Warn("Failed to count mirrored points", "error", err)
		} else {
			s.MirrorPoints = &info.PointsCount
		}
	}
	return s
}

// Close releases the Qdrant connection, if any.
func (e *Engine) Close() error {
	if e.qdrant != nil {
		return e.qdrant.Close()
	}
	return nil
}
