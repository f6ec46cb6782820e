package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes payload with the given status. Encoding failures are
// unrecoverable once the header is out, so they are ignored.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends the standard {"error": msg} body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
