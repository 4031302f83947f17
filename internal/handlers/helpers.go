package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/benvon/gateway-console/internal/logger"
)

// maxErrorMessageLength caps messages echoed to clients.
const maxErrorMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response. Gateway error text can carry
// URLs and response bodies, so the message is sanitized and truncated.
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	respondJSONErrorData(w, status, errorType, message, nil)
}

// respondJSONErrorData is respondJSONError with a data payload, for failures
// that still have state worth returning.
func respondJSONErrorData(w http.ResponseWriter, status int, errorType, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	sanitized := logger.SanitizeString(message, maxErrorMessageLength)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitized,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		response["data"] = data
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
