package api

import (
	"encoding/json"
	"net/http"
)

const (
	codeUnauthorized      = "unauthorized"
	codeBatchTooLarge     = "batch_too_large"
	codePayloadTooLarge   = "payload_too_large"
	codeValidation        = "validation_error"
	codeNotFound          = "not_found"
	codeMethodNotAllowed  = "method_not_allowed"
	codeRequestCancelled  = "request_cancelled"
	codeInternal          = "internal_server_error"
	internalErrorMessage  = "An unexpected error occurred."
	validationErrorPrefix = "Invalid request parameters."
)

// errorBody is the envelope of every non-2xx response
type errorBody struct {
	Error map[string]any `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","request_id", ...extra}}
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, extra map[string]any) {
	body := map[string]any{
		"code":       code,
		"message":    message,
		"request_id": RequestID(r.Context()),
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, errorBody{Error: body})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, details ...string) {
	writeError(w, r, http.StatusUnprocessableEntity, codeValidation, validationErrorPrefix, map[string]any{"details": details})
}
