package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// response shape. Errors always look like
//
//	{"error": "not_found", "message": "list not found with id abc123"}
//
// with an optional "field" for validation errors.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/auth"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable type, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, for validation errors
}

// writeJSON sends a JSON response. Headers and status go out before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a sentinel to its HTTP status and error type.
var errorStatus = []struct {
	sentinel error
	status   int
	kind     string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrConfiguration, http.StatusServiceUnavailable, "configuration_error"},
	{apperror.ErrTransient, http.StatusServiceUnavailable, "store_unavailable"},
}

// writeError maps a domain error to an HTTP status and sends it.
//
// errors.As finds the *AppError anywhere in the chain, so services can wrap
// with fmt.Errorf("...: %w", err) freely. Anything that is not an AppError
// is a 500 and its text never reaches the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, m := range errorStatus {
			if errors.Is(err, m.sentinel) {
				if m.status >= http.StatusInternalServerError {
					slog.Error("request failed", slog.String("error", err.Error()))
				}
				writeJSON(w, m.status, ErrorResponse{Error: m.kind, Message: appErr.Message, Field: appErr.Field})
				return
			}
		}
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected so a
// typo in a patch does not silently do nothing.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	return nil
}

// viewerID is the signed-in user, or "" for anonymous requests.
func viewerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
