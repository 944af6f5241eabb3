package api

import (
	"encoding/json"
	"net/http"

	"github.com/hookrelay/hookrelay/internal/registry"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeRegistryError maps registry error types onto HTTP statuses.
func writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case registry.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case registry.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
