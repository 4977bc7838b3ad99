package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// LivenessHandler handles liveness probe requests.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker.Liveness() {
			writeHealthResponse(w, http.StatusOK, HealthResponse{
				Status:    "UP",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}, logger)
			return
		}

		writeHealthResponse(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "DOWN",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler handles readiness probe requests.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if checker.Readiness(ctx) {
			writeHealthResponse(w, http.StatusOK, HealthResponse{
				Status:     "UP",
				Components: checker.GetStatus(),
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			}, logger)
			return
		}

		writeHealthResponse(w, http.StatusServiceUnavailable, HealthResponse{
			Status:     "DOWN",
			Components: checker.GetStatus(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

func writeHealthResponse(w http.ResponseWriter, status int, resp HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}
