package panel

import (
	"encoding/json"
	"net/http"

	"github.com/rendis/unitconsole/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeConsoleError writes err with the status its code maps to. extra fields
// are merged into the body.
func writeConsoleError(w http.ResponseWriter, err error, extra map[string]any) {
	body := map[string]any{"error": err.Error()}
	if code := schema.Code(err); code != "" {
		body["code"] = code
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, errorStatus(err), body)
}

// errorStatus maps a console error code to an HTTP status.
func errorStatus(err error) int {
	switch schema.Code(err) {
	case schema.ErrCodeValidation, schema.ErrCodeExpression:
		return http.StatusBadRequest
	case schema.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case schema.ErrCodeForbidden:
		return http.StatusForbidden
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeClosed:
		return http.StatusConflict
	case schema.ErrCodeBackend, schema.ErrCodeTransport, schema.ErrCodeSnapshot,
		schema.ErrCodeMalformedPayload, schema.ErrCodeCrossInstance:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
