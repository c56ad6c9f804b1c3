// Package config reads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults applied when a variable is unset.
const (
	DefaultBundleDir      = "data/bundle"
	DefaultMinChunkLength = 100
	DefaultTopK           = 5
	DefaultQdrantHost     = "localhost"
	DefaultQdrantPort     = 6334
	DefaultPort           = "8080"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// Config holds the settings shared by the CLIs and the server.
type Config struct {
	BundleDir      string
	MinChunkLength int
	TopK           int

	EmbeddingBaseURL string // Empty uses the OpenAI default
	EmbeddingAPIKey  string
	EmbeddingModel   string

	ProvidersFile string // Optional YAML override of the fallback list

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	UseQdrant        bool // Serve retrieval from the Qdrant mirror instead of the local index

	GitHubToken  string
	GitHubSource string // owner/repo/path[@ref] the bundle was built from; enables staleness checks

	Port       string
	ServerMode bool
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		BundleDir:        get("BUNDLE_DIR", DefaultBundleDir),
		EmbeddingBaseURL: get("EMBEDDING_BASE_URL", ""),
		EmbeddingAPIKey:  get("EMBEDDING_API_KEY", get("OPENAI_API_KEY", "")),
		EmbeddingModel:   get("EMBEDDING_MODEL", DefaultEmbeddingModel),
		ProvidersFile:    get("PROVIDERS_FILE", ""),
		QdrantHost:       get("QDRANT_HOST", DefaultQdrantHost),
		QdrantCollection: get("QDRANT_COLLECTION", "clinical_chunks"),
		GitHubToken:      get("GITHUB_TOKEN", ""),
		GitHubSource:     get("GITHUB_SOURCE", ""),
		Port:             get("PORT", DefaultPort),
	}

	var err error
	if cfg.MinChunkLength, err = intVar(get, "MIN_CHUNK_LENGTH", DefaultMinChunkLength); err != nil {
		return nil, err
	}
	if cfg.TopK, err = intVar(get, "TOP_K", DefaultTopK); err != nil {
		return nil, err
	}
	if cfg.TopK < 1 {
		return nil, fmt.Errorf("TOP_K must be at least 1, got %d", cfg.TopK)
	}
	if cfg.QdrantPort, err = intVar(get, "QDRANT_PORT", DefaultQdrantPort); err != nil {
		return nil, err
	}
	if cfg.UseQdrant, err = boolVar(get, "USE_QDRANT"); err != nil {
		return nil, err
	}
	if cfg.ServerMode, err = boolVar(get, "SERVER_MODE"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intVar(get func(string, string) string, key string, def int) (int, error) {
	raw := get(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func boolVar(get func(string, string) string, key string) (bool, error) {
	raw := get(key, "")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
