package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/streamvault/backend/internal/services"
)

// decodeJSON applies the shared request-body discipline: size cap, unknown
// fields rejected, exactly one JSON object, struct tags validated. Writes
// the error response itself and reports whether the caller may proceed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, vh *services.ValidationHelper) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := vh.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}
