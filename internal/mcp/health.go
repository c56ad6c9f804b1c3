package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	Search    string `json:"search"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The engine implements this by checking its search backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It checks the search backend and returns appropriate status codes.
func NewHealthHandler(checker HealthChecker, backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := checker.Health(ctx)

		response := HealthResponse{
			Backend:   backend,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		if err != nil {
			response.Status = "unhealthy"
			response.Search = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}

		response.Status = "healthy"
		response.Search = "connected"
		writeJSON(w, http.StatusOK, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
