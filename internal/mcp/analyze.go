package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bull/clinical-rag/internal/answer"
)

// maxAnalyzeBody bounds the /analyze request body.
const maxAnalyzeBody = 64 << 10

// SymptomAnalyzer answers a list of symptoms as one question.
type SymptomAnalyzer interface {
	AskSymptoms(ctx context.Context, symptoms []string) (answer.Answer, error)
}

// NewAnalyzeHandler creates the POST /analyze handler.
// An exhausted fallback list is still a 200 carrying the unavailable answer.
func NewAnalyzeHandler(analyzer SymptomAnalyzer, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
			return
		}

		var req AnalyzeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
			return
		}

		ans, err := analyzer.AskSymptoms(r.Context(), req.Symptoms)
		if err != nil {
			if errors.Is(err, answer.ErrEmptyQuestion) {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "symptoms are required"})
				return
			}
			logger.Error("Analyze failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to analyze symptoms"})
			return
		}

		writeJSON(w, http.StatusOK, AnalyzeResponse{Results: AnalyzeResult{
			Answer:     ans.Text,
			Provenance: ans.Provenance,
		}})
	}
}
