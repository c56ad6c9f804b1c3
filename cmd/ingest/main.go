// Package main provides the ingestion CLI that builds the clinical reference index.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/clinical-rag/internal/chunking"
	"github.com/bull/clinical-rag/internal/config"
	"github.com/bull/clinical-rag/internal/embedding"
	ghclient "github.com/bull/clinical-rag/internal/github"
	"github.com/bull/clinical-rag/internal/indexer"
	"github.com/bull/clinical-rag/internal/markdown"
	"github.com/bull/clinical-rag/internal/storage"
)

var (
	pagesPath  string
	githubSrc  string
	outDir     string
	minLength  int
	syncQdrant bool
	sections   bool
	bundleDir  string
)

var rootCmd = &cobra.Command{
	Use:          "clinical-ingest",
	Short:        "Clinical reference indexing tool",
	Long:         "CLI tool for building the clinical reference chunk index and mirroring it into Qdrant",
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index bundle from the reference pages",
	Long: `Chunks, embeds and indexes the paginated reference document.

This command:
1. Loads pages from a local JSON/PDF file or from a GitHub repository
2. Splits every page into paragraph chunks tagged with their page number
3. Generates an embedding for each chunk
4. Writes index.bin, chunks.json, metadata.json and manifest.json to --out
5. Optionally replaces the Qdrant collection with the new chunks (--qdrant)

Environment variables:
  EMBEDDING_API_KEY   Embedding API key (falls back to OPENAI_API_KEY)
  EMBEDDING_BASE_URL  OpenAI-compatible embedding endpoint (default: OpenAI)
  EMBEDDING_MODEL     Embedding model (default: text-embedding-3-small)
  BUNDLE_DIR          Default output directory (default: data/bundle)
  MIN_CHUNK_LENGTH    Default minimum chunk length in characters (default: 100)
  GITHUB_TOKEN        GitHub token for higher rate limits (optional)
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION   Qdrant collection (default: clinical_chunks)`,
	RunE: runBuild,
}

var qdrantSyncCmd = &cobra.Command{
	Use:   "qdrant-sync",
	Short: "Mirror an existing bundle into Qdrant",
	Long: `Loads a built bundle and replaces the Qdrant collection with its chunks.

Point IDs are bundle positions, so the Qdrant backend returns the same
chunks as the local index.`,
	RunE: runQdrantSync,
}

func init() {
	buildCmd.Flags().StringVar(&pagesPath, "pages", "", "local pages JSON or PDF file")
	buildCmd.Flags().StringVar(&githubSrc, "github", "", "GitHub source as owner/repo/path[@ref]")
	buildCmd.Flags().StringVar(&outDir, "out", "", "bundle output directory (default: $BUNDLE_DIR)")
	buildCmd.Flags().IntVar(&minLength, "min-length", 0, "minimum chunk length in characters (default: $MIN_CHUNK_LENGTH)")
	buildCmd.Flags().BoolVar(&syncQdrant, "qdrant", false, "also mirror the bundle into Qdrant")
	buildCmd.Flags().BoolVar(&sections, "sections", true, "tag chunks with their markdown heading path")
	buildCmd.MarkFlagsMutuallyExclusive("pages", "github")
	buildCmd.MarkFlagsOneRequired("pages", "github")

	qdrantSyncCmd.Flags().StringVar(&bundleDir, "bundle", "", "bundle directory (default: $BUNDLE_DIR)")

	rootCmd.AddCommand(buildCmd, qdrantSyncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = cfg.BundleDir
	}
	if minLength <= 0 {
		minLength = cfg.MinChunkLength
	}

	fmt.Println("Starting build...")
	fmt.Println()

	// 1. Page source
	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Source: %s\n", source.Describe())

	// 2. Embedding client
	embeddingClient, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:  cfg.EmbeddingAPIKey,
		BaseURL: cfg.EmbeddingBaseURL,
	})
	if err != nil {
		return fmt.Errorf("Failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, cfg.EmbeddingModel, 0) // Use default batch size

	// 3. Optional Qdrant mirror
	var mirror indexer.Mirror
	if syncQdrant {
		qs, err := connectQdrant(ctx, cfg)
		if err != nil {
			return err
		}
		defer qs.Close()
		mirror = qs
	}

	// 4. Run the pipeline
	fmt.Println()
	fmt.Println("Indexing pages...")
	opts := []chunking.Option{chunking.WithMinLength(minLength), chunking.WithLogger(slog.Default())}
	if sections {
		opts = append(opts, chunking.WithOutliner(markdown.NewOutliner()))
	}
	chunker := chunking.NewChunker(opts...)
	pipeline := indexer.NewPipeline(chunker, embedder, embedder.Model(), mirror, slog.Default())

	result, err := pipeline.Build(ctx, source, outDir)
	if err != nil {
		return fmt.Errorf("Indexing failed: %w", err)
	}

	// 5. Print results
	fmt.Println()
	fmt.Println("Build complete!")
	fmt.Printf("  Pages: %d (%d empty)\n", result.TotalPages, result.EmptyPages)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Dimension: %d\n", result.Dimension)
	fmt.Printf("  Bundle: %s (%s)\n", result.BundleDir, result.ManifestID)
	if result.SourceSHA != "" {
		fmt.Printf("  Commit: %s\n", result.SourceSHA)
	}
	if syncQdrant {
		fmt.Printf("  Qdrant points: %d\n", result.Mirrored)
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))

	return nil
}

func runQdrantSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if bundleDir == "" {
		bundleDir = cfg.BundleDir
	}

	fmt.Printf("Loading bundle from %s...\n", bundleDir)
	store, err := storage.Load(bundleDir)
	if err != nil {
		return fmt.Errorf("Failed to load bundle: %w", err)
	}
	fmt.Printf("Loaded %d chunks of dimension %d\n", store.Len(), store.Dimension())

	qs, err := connectQdrant(ctx, cfg)
	if err != nil {
		return err
	}
	defer qs.Close()

	fmt.Println()
	fmt.Println("Replacing collection...")
	pipeline := indexer.NewPipeline(nil, nil, store.Manifest().EmbeddingModel, qs, slog.Default())
	written, err := pipeline.Sync(ctx, store)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Points: %d\n", written)
	fmt.Printf("  Collection: %s\n", cfg.QdrantCollection)
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func newSource(ctx context.Context, cfg *config.Config) (indexer.Source, error) {
	switch {
	case pagesPath != "":
		return indexer.FileSource{Path: pagesPath}, nil
	case githubSrc != "":
		src, err := ghclient.ParseSource(githubSrc)
		if err != nil {
			return nil, err
		}
		client, err := ghclient.NewClient(ctx, cfg.GitHubToken)
		if err != nil {
			return nil, fmt.Errorf("Failed to create GitHub client: %w", err)
		}
		return ghclient.NewFetcher(client, src), nil
	default:
		return nil, errors.New("one of --pages or --github is required")
	}
}

func connectQdrant(ctx context.Context, cfg *config.Config) (*storage.QdrantStorage, error) {
	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
	qs, err := storage.NewQdrantStorage(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to Qdrant: %w", err)
	}
	if err := qs.Health(ctx); err != nil {
		qs.Close()
		return nil, fmt.Errorf("Qdrant health check failed: %w", err)
	}
	fmt.Println("Qdrant healthy")
	return qs, nil
}
