package api

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in API responses
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
)

// APIError is returned for requests rejected before a benchmark starts.
// Benchmark failures use the {"error": ...} envelope instead.
type APIError struct {
	Code    string                 `json:"error_code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeValidationError writes a 400 Bad Request with validation details
func writeValidationError(w http.ResponseWriter, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Details: details,
	})
}
