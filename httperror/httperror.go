// Package httperror simplifies returning an error as JSON from an HTTP handler
package httperror

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type jsonError struct {
	Error string `json:"error"`
}

// Send writes {"error": message} with status.
func Send(w http.ResponseWriter, req *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	m := jsonError{Error: message}
	if err := json.NewEncoder(w).Encode(m); err != nil {
		log.Warn().Err(err).Str("Path", req.URL.Path).Msg("Unable to write error response")
	}
}

// SendError logs err and writes message. Server errors are logged at error level.
func SendError(w http.ResponseWriter, req *http.Request, status int, message string, err error) {
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("Method", req.Method).
		Str("Path", req.URL.Path).
		Int("Status", status).
		Msg(message)
	Send(w, req, status, message)
}
