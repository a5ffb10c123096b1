package httpapi

import (
	"encoding/json"
	"net/http"

	"codegw/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeResolveError writes the 400 payload of the completion endpoints:
// the resolver's message plus the caps version, so clients know to
// refresh their model list.
func writeResolveError(w http.ResponseWriter, msg string, capsVersion int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(types.ErrorDetail{Detail: msg, CapsVersion: capsVersion})
}
