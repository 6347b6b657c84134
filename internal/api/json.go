package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/remi/internal/response"
)

const maxRequestBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// readJSON decodes a bounded request body into v. An empty body leaves v
// untouched.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	// Status is set when a Gemini server answered with a failure code.
	Status *response.Status `json:"status,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
