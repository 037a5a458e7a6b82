package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chronofact/chronofact/internal/chronoerr"
)

// envelope is the shared JSON response shape, carried over from the
// teacher's documents.go/respondJSON pattern.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a chronoerr.Kind to the HTTP status spec.md §7 assigns it.
func statusFor(err error) int {
	switch chronoerr.KindOf(err) {
	case chronoerr.KindInvalidRequest:
		return http.StatusBadRequest
	case chronoerr.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case chronoerr.KindEmbeddingUnavailable, chronoerr.KindRetrievalUnavailable, chronoerr.KindSchemaViolation:
		return http.StatusBadGateway
	case chronoerr.KindBackendBusy:
		return http.StatusServiceUnavailable
	case chronoerr.KindRateLimited:
		return http.StatusTooManyRequests
	case chronoerr.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), envelope{Success: false, Error: err.Error()})
}
