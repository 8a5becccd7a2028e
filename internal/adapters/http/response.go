package http

import (
	"encoding/json"
	"net/http"
)

// apiError is the error half of the response envelope. Data is set on limit
// refusals, where the body still carries the entitlement decision so clients
// can render the paywall state without a follow-up request.
type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Machine-readable error codes clients branch on.
const (
	codeLimitReached     = "LIMIT_REACHED"
	codeStateUnavailable = "STATE_UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeErrorWithData(w, statusCode, code, message, nil)
}

func writeErrorWithData(w http.ResponseWriter, statusCode int, code, message string, data any) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
		Data:    data,
	})
}
