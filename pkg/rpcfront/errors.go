package rpcfront

import (
	"encoding/json"
	"net/http"

	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

// apiResponse is the envelope for error bodies, grounded on the teacher's
// cmd/noisefs-webui/main.go APIResponse/sendError pattern.
type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// statusFor maps a taxonomy kind to the HTTP status of spec.md §6.1's
// error code table.
func statusFor(kind taxonomy.Kind) int {
	switch kind {
	case taxonomy.NotFound:
		return http.StatusNotFound
	case taxonomy.Invalid:
		return http.StatusBadRequest
	case taxonomy.PermissionDenied:
		return http.StatusForbidden
	case taxonomy.ResourceExhausted:
		return http.StatusTooManyRequests
	case taxonomy.Conflict:
		return http.StatusConflict
	case taxonomy.TransientUnavailable:
		return http.StatusServiceUnavailable
	case taxonomy.Cancelled:
		return 499
	case taxonomy.Integrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := taxonomy.KindOf(err)
	writeJSON(w, statusFor(kind), apiResponse{
		Success: false,
		Error:   err.Error(),
		Code:    string(kind),
	})
}
