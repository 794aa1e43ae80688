package http

import (
	"errors"
	"log/slog"
	"net/http"

	"feeledger/internal/core"
)

type errorJSON struct {
	Error  string           `json:"error"`
	Fields []core.FieldError `json:"fields,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDuplicateMonth):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Server-side failures are logged and their
// detail is kept out of the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorJSON{Error: err.Error()}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}

	switch status {
	case http.StatusServiceUnavailable:
		slog.ErrorContext(r.Context(), "Storage failure", "path", r.URL.Path, "error", err)
		body.Error = "storage unavailable, please retry"
	case http.StatusInternalServerError:
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	}
	writeJSON(w, r, status, body)
}
