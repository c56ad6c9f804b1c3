package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v81/github"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/clinical-rag/internal/answer"
	"github.com/bull/clinical-rag/internal/engine"
	ghclient "github.com/bull/clinical-rag/internal/github"
	"github.com/bull/clinical-rag/internal/provider"
	"github.com/bull/clinical-rag/internal/storage"
)

// fakeEngine answers from canned values.
type fakeEngine struct {
	answer    answer.Answer
	askErr    error
	hits      []storage.Hit
	searchErr error
	healthErr error
	status    engine.Status

	gotQuestion string
	gotSymptoms []string
	gotK        int
}

func (f *fakeEngine) Ask(_ context.Context, q string) (answer.Answer, error) {
	f.gotQuestion = q
	if strings.TrimSpace(q) == "" {
		return answer.Answer{Text: answer.Unavailable, Provenance: answer.NoProvenance}, answer.ErrEmptyQuestion
	}
	return f.answer, f.askErr
}

func (f *fakeEngine) AskSymptoms(ctx context.Context, symptoms []string) (answer.Answer, error) {
	f.gotSymptoms = symptoms
	return f.Ask(ctx, strings.Join(symptoms, ", "))
}

func (f *fakeEngine) Search(_ context.Context, _ string, k int) ([]storage.Hit, error) {
	f.gotK = k
	return f.hits, f.searchErr
}

func (f *fakeEngine) Status(context.Context) engine.Status { return f.status }
func (f *fakeEngine) Health(context.Context) error         { return f.healthErr }
func (f *fakeEngine) Backend() string                      { return engine.BackendLocal }

func answeredEngine() *fakeEngine {
	return &fakeEngine{
		answer: answer.Answer{
			Text:       "Meningitis should be considered [Page 212].",
			Provenance: "Groq (llama-3.3-70b-versatile)",
			Attempts: []answer.Attempt{
				{Provider: "Groq", Model: "llama-3.3-70b-versatile", Outcome: provider.OutcomeSuccess},
			},
		},
		hits: []storage.Hit{
			{Position: 4, Text: "Neck stiffness with fever...", Page: 212, Section: "# Infections", Distance: 0.31},
			{Position: 9, Text: "Fever is...", Page: 3, Distance: 0.52},
		},
		status: engine.Status{
			ManifestID:     "manifest-1",
			EmbeddingModel: "text-embedding-3-small",
			Dimension:      1536,
			Chunks:         812,
			MinLength:      100,
			SourceSHA:      "abc123",
			BuiltAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Backend:        engine.BackendLocal,
			TopK:           5,
			Providers:      []engine.ProviderStatus{{Name: "Groq", Models: []string{"llama-3.3-70b-versatile"}}},
		},
	}
}

func TestAskHandler(t *testing.T) {
	eng := answeredEngine()

	_, out, err := makeAskHandler(eng)(context.Background(), nil, AskInput{Question: "fever and stiff neck?"})
	require.NoError(t, err)

	assert.Equal(t, "fever and stiff neck?", eng.gotQuestion)
	assert.Equal(t, "Meningitis should be considered [Page 212].", out.Answer)
	assert.Equal(t, "Groq (llama-3.3-70b-versatile)", out.Provenance)
	assert.Equal(t, []AttemptInfo{{Provider: "Groq", Model: "llama-3.3-70b-versatile", Outcome: "success"}}, out.Attempts)
}

func TestAskHandler_Errors(t *testing.T) {
	eng := answeredEngine()
	_, _, err := makeAskHandler(eng)(context.Background(), nil, AskInput{Question: " "})
	assert.ErrorContains(t, err, "question is required")

	eng.askErr = errors.New("embedding service down")
	_, _, err = makeAskHandler(eng)(context.Background(), nil, AskInput{Question: "q"})
	assert.ErrorContains(t, err, "embedding service down")
}

func TestAskHandler_ExhaustedIsNotAnError(t *testing.T) {
	eng := &fakeEngine{answer: answer.Answer{Text: answer.Unavailable, Provenance: answer.NoProvenance}}

	_, out, err := makeAskHandler(eng)(context.Background(), nil, AskInput{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, answer.Unavailable, out.Answer)
	assert.Equal(t, "None", out.Provenance)
	assert.Empty(t, out.Attempts)
}

func TestSearchHandler(t *testing.T) {
	eng := answeredEngine()

	_, out, err := makeSearchHandler(eng)(context.Background(), nil, SearchInput{Query: "stiff neck"})
	require.NoError(t, err)

	assert.Equal(t, defaultMaxResults, eng.gotK)
	require.Len(t, out.Results, 2)
	assert.Equal(t, SearchResult{Page: 212, Section: "# Infections", Text: "Neck stiffness with fever...", Distance: 0.31}, out.Results[0])
	assert.Empty(t, out.Message)

	_, _, err = makeSearchHandler(eng)(context.Background(), nil, SearchInput{Query: "q", MaxResults: 100})
	require.NoError(t, err)
	assert.Equal(t, maxMaxResults, eng.gotK)
}

func TestSearchHandler_EmptyAndErrors(t *testing.T) {
	eng := &fakeEngine{}
	_, out, err := makeSearchHandler(eng)(context.Background(), nil, SearchInput{Query: "q"})
	require.NoError(t, err)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
	assert.NotEmpty(t, out.Message)

	_, _, err = makeSearchHandler(eng)(context.Background(), nil, SearchInput{})
	assert.Error(t, err)

	eng.searchErr = storage.ErrDimensionMismatch
	_, _, err = makeSearchHandler(eng)(context.Background(), nil, SearchInput{Query: "q"})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestStatusHandler(t *testing.T) {
	_, out, err := makeStatusHandler(answeredEngine(), nil, nil)(context.Background(), nil, StatusInput{})
	require.NoError(t, err)

	assert.Equal(t, "manifest-1", out.ManifestID)
	assert.Equal(t, 812, out.TotalChunks)
	assert.Equal(t, 1536, out.Dimension)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.BuiltAt)
	assert.Equal(t, "abc123", out.SourceCommit)
	assert.Equal(t, []ProviderInfo{{Name: "Groq", Models: []string{"llama-3.3-70b-versatile"}}}, out.Providers)
	assert.Nil(t, out.CommitsBehind)
}

func TestStatusHandler_Staleness(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/reference/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "data/pages.json", r.URL.Query().Get("path"))
		var commits []string
		for i := 0; i < 25; i++ {
			commits = append(commits, fmt.Sprintf(`{"sha": "new%d"}`, i))
		}
		commits = append(commits, `{"sha": "abc123"}`, `{"sha": "old"}`)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[%s]", strings.Join(commits, ","))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	source := &ghclient.Source{Owner: "acme", Repo: "reference", Path: "data/pages.json"}

	_, out, err := makeStatusHandler(answeredEngine(), &ghclient.Client{Client: gh}, source)(context.Background(), nil, StatusInput{})
	require.NoError(t, err)

	require.NotNil(t, out.CommitsBehind)
	assert.Equal(t, 25, *out.CommitsBehind)
	assert.Contains(t, out.StaleWarning, "25 commits since")
}

func TestAnalyzeHandler(t *testing.T) {
	eng := answeredEngine()
	h := NewAnalyzeHandler(eng, nil)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"symptoms": ["fever", "stiff neck"]}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"fever", "stiff neck"}, eng.gotSymptoms)

	var resp AnalyzeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Meningitis should be considered [Page 212].", resp.Results.Answer)
	assert.Equal(t, "Groq (llama-3.3-70b-versatile)", resp.Results.Provenance)
}

func TestAnalyzeHandler_Exhausted(t *testing.T) {
	eng := &fakeEngine{answer: answer.Answer{Text: answer.Unavailable, Provenance: answer.NoProvenance}}

	rec := httptest.NewRecorder()
	NewAnalyzeHandler(eng, nil)(rec, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"symptoms": ["cough"]}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"results": {"answer": "Service temporarily unavailable. All free providers are at capacity.", "provenance": "None"}}`,
		rec.Body.String())
}

func TestAnalyzeHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		err    error
		want   int
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, `{"symptoms":`, nil, http.StatusBadRequest},
		{"no symptoms", http.MethodPost, `{"symptoms": []}`, nil, http.StatusBadRequest},
		{"retrieval failure", http.MethodPost, `{"symptoms": ["fever"]}`, errors.New("embedding down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := answeredEngine()
			eng.askErr = tt.err

			rec := httptest.NewRecorder()
			NewAnalyzeHandler(eng, nil)(rec, httptest.NewRequest(tt.method, "/analyze", strings.NewReader(tt.body)))

			assert.Equal(t, tt.want, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(&fakeEngine{}, engine.BackendQdrant)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "qdrant", resp.Backend)
	assert.Equal(t, "connected", resp.Search)

	rec = httptest.NewRecorder()
	NewHealthHandler(&fakeEngine{healthErr: storage.ErrQdrantUnreachable}, engine.BackendQdrant)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "disconnected", resp.Search)
}

func TestMux(t *testing.T) {
	srv := httptest.NewServer(NewServer(&Config{Engine: answeredEngine()}).Mux())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/analyze", "application/json", strings.NewReader(`{"symptoms": ["fever"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ToolsOverMCP(t *testing.T) {
	ctx := context.Background()
	server := NewServer(&Config{Engine: answeredEngine()})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask_clinical_question", "search_reference", "get_index_status"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_reference",
		Arguments: map[string]any{"query": "stiff neck", "max_results": 2},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out SearchOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Results, 2)
	assert.Equal(t, 212, out.Results[0].Page)
}
