package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	mcerr "github.com/mathchange/backend/pkg/errors"
)

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: failed to encode response", "error", err)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// writeError maps a handler error to an HTTP response. Client errors
// (4xx) carry the error message; server errors (5xx) are replaced with a
// generic body and logged, so internals never leak to clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := mcerr.FromError(err)
	status := e.HTTPStatus()

	if status >= 500 {
		slog.ErrorContext(r.Context(), "api: request failed",
			"error", err,
			"code", string(e.Code),
			"path", r.URL.Path,
		)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: e.Message})
}

// decodeJSON reads the request body into v, rejecting unknown fields and
// oversized payloads.
func decodeJSON(r *http.Request, v any, maxBytes int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return mcerr.Wrap(err, mcerr.CodeValidation, "api: invalid request body")
	}
	return nil
}
