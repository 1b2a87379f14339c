package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openclaw/cloud/internal/errs"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, err string, message string) {
	Respond(w, status, ErrorResponse{Error: err, Message: message})
}

// statusForKind maps an errs.Kind to the HTTP status this codebase uses for
// it at every component boundary.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindAuth:
		return http.StatusUnauthorized
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	case errs.KindMonthlyLimitExceeded:
		return http.StatusTooManyRequests
	case errs.KindInvalidState, errs.KindConflict:
		return http.StatusConflict
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError writes the JSON shape for an *errs.Error, falling back
// to a bare 500 for anything that isn't one.
func RespondDomainError(w http.ResponseWriter, err error) {
	e, ok := errs.As(err)
	if !ok {
		RespondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	Respond(w, statusForKind(e.Kind), ErrorResponse{
		Error:   string(e.Kind),
		Message: e.Message,
		Fields:  e.Fields,
	})
}
