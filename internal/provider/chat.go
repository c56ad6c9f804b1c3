package provider

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Base URLs of the OpenAI-compatible provider APIs.
const (
	GroqBaseURL       = "https://api.groq.com/openai/v1/"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1/"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one chat message of a prompt.
type Message struct {
	Role    Role
	Content string
}

// Client completes a prompt with a named model.
// Implementations never return errors; failures are classified in the Result.
type Client interface {
	Complete(ctx context.Context, model string, messages []Message) Result
}

// ChatConfig configures a ChatClient.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Headers     map[string]string // Extra headers sent with every request
	Temperature *float64          // Nil leaves sampling at the provider default
	Timeout     time.Duration     // Per-request bound; zero leaves the SDK default
	Options     []option.RequestOption
}

// ChatClient calls an OpenAI-compatible chat completions endpoint.
// The SDK's own retries are disabled: fallback across models is the only retry.
type ChatClient struct {
	client      openai.Client
	temperature *float64
}

// NewChatClient creates a client for the configured endpoint.
func NewChatClient(cfg ChatConfig) *ChatClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	opts = append(opts, cfg.Options...)

	return &ChatClient{
		client:      openai.NewClient(opts...),
		temperature: cfg.Temperature,
	}
}

// Complete sends messages to model and classifies the response.
func (c *ChatClient) Complete(ctx context.Context, model string, messages []Message) Result {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toParams(messages),
	}
	if c.temperature != nil {
		params.Temperature = openai.Float(*c.temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Malformed(errors.New("response has no choices"))
	}
	return Success(resp.Choices[0].Message.Content)
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
