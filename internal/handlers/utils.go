package handlers

import (
	"encoding/json"
	"net/http"

	"media-ingest/internal/logging"
)

// writeJSON sends v with the given status. Once the header is out an
// encoding failure can only be logged.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("encode %T response: %v", v, err)
	}
}

// writeJSONError sends {"error": message}.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
