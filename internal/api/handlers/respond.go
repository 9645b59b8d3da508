package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/wonny/earningsedge/internal/contracts"
)

// ErrorBody is the JSON shape of every non-2xx response
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"` // snake_case status text, e.g. "not_found"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorBody; shared with the api middleware
func WriteError(w http.ResponseWriter, status int, message string) {
	code := strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
	writeJSON(w, status, ErrorBody{Error: message, Code: code})
}

// fail reports err with the status statusFor picks
func fail(w http.ResponseWriter, err error) {
	WriteError(w, statusFor(err), err.Error())
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, contracts.ErrInvalidAction),
		errors.Is(err, contracts.ErrEmptyPool):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrMissingArtifact), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
