package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "m",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func newTestClient(t *testing.T, cfg ChatConfig, handler http.HandlerFunc) *ChatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/"
	cfg.APIKey = "test-key"
	return NewChatClient(cfg)
}

func TestComplete_Success(t *testing.T) {
	temp := 0.1
	var got chatRequest
	var headers http.Header
	client := newTestClient(t, ChatConfig{
		Temperature: &temp,
		Headers:     map[string]string{"X-Title": "clinical-rag"},
	}, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("See page 12."))
	})

	res := client.Complete(context.Background(), "llama-test", []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "user"},
	})

	require.True(t, res.OK(), "unexpected result: %+v", res)
	assert.Equal(t, "See page 12.", res.Text)
	assert.Equal(t, "llama-test", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.1, *got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "clinical-rag", headers.Get("X-Title"))
	assert.Equal(t, "Bearer test-key", headers.Get("Authorization"))
}

func TestComplete_OmitsTemperatureWhenUnset(t *testing.T) {
	var raw map[string]any
	client := newTestClient(t, ChatConfig{}, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody("ok"))
	})

	res := client.Complete(context.Background(), "m", []Message{{Role: RoleUser, Content: "q"}})

	require.True(t, res.OK())
	assert.NotContains(t, raw, "temperature")
}

func TestComplete_Classification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    Outcome
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"message": "rate limit"}}`)
		}, OutcomeRateLimited},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": {"message": "down"}}`)
		}, OutcomeTransportError},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id": "x", "object": "chat.completion", "choices": []}`)
		}, OutcomeMalformed},
		{"blank content", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, completionBody("   "))
		}, OutcomeMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, ChatConfig{}, tt.handler)

			res := client.Complete(context.Background(), "m", []Message{{Role: RoleUser, Content: "q"}})

			assert.Equal(t, tt.want, res.Outcome)
			assert.False(t, res.OK())
			assert.Error(t, res.Err)
		})
	}
}

func TestComplete_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	client := newTestClient(t, ChatConfig{Timeout: 50 * time.Millisecond}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	start := time.Now()
	res := client.Complete(context.Background(), "m", []Message{{Role: RoleUser, Content: "q"}})

	assert.Equal(t, OutcomeTransportError, res.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClassify(t *testing.T) {
	var syntaxErr *json.SyntaxError
	decodeErr := json.Unmarshal([]byte("{"), &struct{}{})
	require.ErrorAs(t, decodeErr, &syntaxErr)

	assert.Equal(t, OutcomeRateLimited, Classify(&openai.Error{StatusCode: 429}).Outcome)
	assert.Equal(t, OutcomeTransportError, Classify(&openai.Error{StatusCode: 503}).Outcome)
	assert.Equal(t, OutcomeTransportError, Classify(context.DeadlineExceeded).Outcome)
	assert.Equal(t, OutcomeTransportError, Classify(errors.New("connection refused")).Outcome)
	assert.Equal(t, OutcomeMalformed, Classify(decodeErr).Outcome)
}

func TestSuccess_BlankIsMalformed(t *testing.T) {
	assert.Equal(t, OutcomeMalformed, Success(" \n").Outcome)
	assert.True(t, Success("answer").OK())
	assert.Equal(t, "rate_limited", OutcomeRateLimited.String())
}
