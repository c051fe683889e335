package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/pipeline"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string            `json:"error"`
	Reason pipeline.Reason   `json:"reason,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	var (
		verr    *pipeline.ValidationError
		failure *pipeline.FailureError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.As(err, &failure) && failure.Reason != pipeline.ReasonPersistenceError:
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: failure.Err.Error(), Reason: failure.Reason})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, pipeline.ErrDiscarded):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, pipeline.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorBody("notification permission denied"))
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
