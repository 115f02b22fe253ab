package server

import (
	"encoding/json"
	"net/http"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/logger"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	_ = writeJSON(w, status, body)
}

// handleError maps sentinel errors to status codes.
func (s *Server) handleError(w http.ResponseWriter, err error, context string) {
	switch {
	case errors.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.IsInvalidRequestError(err):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		s.logger.Errorw(context, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", context)
	}
}
