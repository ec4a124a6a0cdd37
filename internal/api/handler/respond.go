package handler

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes v as JSON. Operator views are point-in-time
// snapshots and must never be served from a cache.
func respondJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"error": msg, "status": status})
}
