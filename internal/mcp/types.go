// Package mcp serves the clinical reference over the Model Context Protocol
// and plain HTTP.
package mcp

// AskInput defines the input parameters for the ask_clinical_question tool.
type AskInput struct {
	// Question is the free-text clinical question.
	Question string `json:"question" jsonschema:"The clinical question to answer from the reference"`
}

// AskOutput contains a grounded answer.
type AskOutput struct {
	// Answer cites reference pages in brackets, or reports that no provider was available.
	Answer string `json:"answer"`
	// Provenance names the provider and model that answered, or "None".
	Provenance string `json:"provenance"`
	// Attempts lists every provider/model tried, in order.
	Attempts []AttemptInfo `json:"attempts"`
}

// AttemptInfo is one provider/model try.
type AttemptInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Outcome  string `json:"outcome"`
}

// SearchInput defines the input parameters for the search_reference tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Maximum number of passages to return (1-20, default 5)"`
}

// SearchOutput contains the matching passages, nearest first.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No passages found").
	Message string `json:"message,omitempty"`
}

// SearchResult is one retrieved passage.
type SearchResult struct {
	// Page is the 1-based page of the reference the passage came from.
	Page int `json:"page"`
	// Section is the heading path of the passage, when known.
	Section string `json:"section,omitempty"`
	// Text is the passage.
	Text string `json:"text"`
	// Distance is the Euclidean distance to the query; lower is closer.
	Distance float64 `json:"distance"`
}

// StatusInput defines the input parameters for the get_index_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the loaded index.
type StatusOutput struct {
	ManifestID     string         `json:"manifest_id"`
	TotalChunks    int            `json:"total_chunks"`
	Dimension      int            `json:"dimension"`
	EmbeddingModel string         `json:"embedding_model"`
	MinLength      int            `json:"min_length"`
	BuiltAt        string         `json:"built_at"`
	SourceCommit   string         `json:"source_commit,omitempty"`
	Backend        string         `json:"backend"`
	MirrorPoints   *uint64        `json:"mirror_points,omitempty"`
	TopK           int            `json:"top_k"`
	Providers      []ProviderInfo `json:"providers"`
	// CommitsBehind counts commits to the page file newer than the indexed one, when known.
	CommitsBehind *int   `json:"commits_behind,omitempty"`
	StaleWarning  string `json:"stale_warning,omitempty"`
}

// ProviderInfo is one entry of the completion fallback list.
type ProviderInfo struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Symptoms []string `json:"symptoms"`
}

// AnalyzeResponse is the body returned by POST /analyze.
type AnalyzeResponse struct {
	Results AnalyzeResult `json:"results"`
}

// AnalyzeResult is the answer to an /analyze request.
type AnalyzeResult struct {
	Answer     string `json:"answer"`
	Provenance string `json:"provenance"`
}

// ErrorResponse is returned by the HTTP handlers on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
