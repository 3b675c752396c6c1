// Package render writes JSON responses and the shared error body.
package render

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes {"error": kind, "message": message} with the given status.
func Error(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, errorResponse{Error: kind, Message: message})
}
