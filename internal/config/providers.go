package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bull/clinical-rag/internal/provider"
)

// ProviderConfig describes one entry of the completion fallback list.
type ProviderConfig struct {
	Name        string            `yaml:"name"`
	BaseURL     string            `yaml:"base_url"`
	APIKeyEnv   string            `yaml:"api_key_env"` // Variable holding the API key
	Models      []string          `yaml:"models"`      // Tried in order
	Temperature *float64          `yaml:"temperature,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty"` // Go duration, e.g. "30s"
	SystemRole  bool              `yaml:"system_role"`       // Send a system message plus a user message
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// APIKey resolves the provider key from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// AttemptTimeout returns the parsed per-attempt timeout, zero when unset.
func (p ProviderConfig) AttemptTimeout() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("provider %s: invalid timeout %q: %w", p.Name, p.Timeout, err)
	}
	return d, nil
}

func (p ProviderConfig) validate() error {
	switch {
	case p.Name == "":
		return errors.New("provider name is required")
	case p.BaseURL == "":
		return fmt.Errorf("provider %s: base_url is required", p.Name)
	case len(p.Models) == 0:
		return fmt.Errorf("provider %s: at least one model is required", p.Name)
	}
	_, err := p.AttemptTimeout()
	return err
}

type providersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// DefaultProviders is the built-in fallback list: Groq first, then OpenRouter's free tier.
func DefaultProviders() []ProviderConfig {
	temperature := 0.1
	return []ProviderConfig{
		{
			Name:        "Groq",
			BaseURL:     provider.GroqBaseURL,
			APIKeyEnv:   "GROQ_API_KEY",
			Models:      []string{"llama-3.3-70b-versatile", "deepseek-r1-distill-llama-70b"},
			Temperature: &temperature,
			Timeout:     "30s",
			SystemRole:  true,
		},
		{
			Name:      "OpenRouter",
			BaseURL:   provider.OpenRouterBaseURL,
			APIKeyEnv: "OPENROUTER_API_KEY",
			Models: []string{
				"deepseek/deepseek-r1-0528:free",
				"meta-llama/llama-3.3-70b-instruct:free",
				"google/gemini-2.0-flash-exp:free",
			},
			Timeout: "25s",
			Headers: map[string]string{
				"HTTP-Referer": "http://localhost:3000",
				"X-Title":      "Medical_RAG_Production",
			},
		},
	}
}

// LoadProviders reads the fallback list from a YAML file. An empty path
// returns DefaultProviders.
func LoadProviders(path string) ([]ProviderConfig, error) {
	if path == "" {
		return DefaultProviders(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseProviders(data)
}

// ParseProviders decodes and validates a providers YAML document.
func ParseProviders(data []byte) ([]ProviderConfig, error) {
	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, errors.New("providers file lists no providers")
	}
	for _, p := range file.Providers {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}
	return file.Providers, nil
}
