package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/coderunner/internal/apperror"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable, e.g. "unsupported_language"
	Message string `json:"message"` // human-readable
	Field   string `json:"field,omitempty"`
}

// writeJSON sets headers, then status, then body. Order matters: the first
// Write flushes the headers.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps an error class to an HTTP status.
//
// Validation and unsupported-language errors carry a message meant for the
// caller. Staging and launch failures are environment problems: the client
// gets a generic message and the cause stays in the server log.
func writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, ErrorResponse) {
	var appErr *apperror.AppError
	hasAppErr := errors.As(err, &appErr)

	switch {
	case errors.Is(err, apperror.ErrUnsupportedLanguage):
		resp := ErrorResponse{Error: "unsupported_language", Message: "unsupported language", Field: "language"}
		if hasAppErr {
			resp.Message = appErr.Message
		}
		return http.StatusBadRequest, resp
	case errors.Is(err, apperror.ErrValidation):
		resp := ErrorResponse{Error: "validation_error", Message: "invalid request"}
		if hasAppErr {
			resp.Message = appErr.Message
			resp.Field = appErr.Field
		}
		return http.StatusBadRequest, resp
	case errors.Is(err, apperror.ErrNotFound):
		resp := ErrorResponse{Error: "not_found", Message: "resource not found"}
		if hasAppErr {
			resp.Message = appErr.Message
		}
		return http.StatusNotFound, resp
	case errors.Is(err, apperror.ErrStaging):
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "staging_failed",
			Message: "could not prepare the execution workspace",
		}
	case errors.Is(err, apperror.ErrLaunch):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "sandbox_unavailable",
			Message: "the execution sandbox could not be started",
		}
	}

	// Never expose internal error details to the client.
	return http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "an internal error occurred",
	}
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decode(w, r, dst, true)
}

func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "request body is too large")
		}
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}

// maxBodyBytes leaves headroom over the 100 KB code limit for JSON escaping and stdin.
const maxBodyBytes = 1 << 20
