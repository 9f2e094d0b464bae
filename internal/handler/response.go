package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/picky/internal/store"
)

const (
	codeValidation  = "validation_failed"
	codeNotFound    = "not_found"
	codeBadRequest  = "bad_request"
	codeUnavailable = "backend_unavailable"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: codeBadRequest})
}

// writeError maps store errors onto status codes. Anything that is not a
// validation or not-found error is logged and reported as a 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		ve *store.ValidationError
		nf *store.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Message, Code: codeValidation})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: nf.Error(), Code: codeNotFound})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "storage backend unavailable",
			Code:  codeUnavailable,
		})
	}
}
