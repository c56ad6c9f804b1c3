package embedding

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientConfig locates an OpenAI-compatible embeddings endpoint.
type ClientConfig struct {
	APIKey  string
	BaseURL string // Empty uses the OpenAI default
	Options []option.RequestOption
}

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client for embedding generation.
// Returns an error if no API key is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}
