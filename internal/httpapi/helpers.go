package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"alumnihub.org/internal/audit"
	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/ids"
	"alumnihub.org/internal/portal"
)

// pathID validates a ULID taken from the request path. Malformed ids get a
// 404 without a store round trip.
func pathID(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	if !ids.Valid(raw) {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return "", false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeFieldErrors renders a validation failure as a field→message map so
// forms can attach messages inline.
func writeFieldErrors(w http.ResponseWriter, r *http.Request, fields portal.FieldErrors) {
	payload := map[string]any{
		"error":  "validation failed",
		"fields": fields,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusBadRequest, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps service errors onto the HTTP error taxonomy.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var fields portal.FieldErrors
	switch {
	case errors.As(err, &fields):
		writeFieldErrors(w, r, fields)
	case errors.Is(err, portal.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, portal.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, portal.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "You do not have permission to perform this action.")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
