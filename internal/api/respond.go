package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/psikit/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON[T any](w http.ResponseWriter, r *http.Request, log *slog.Logger, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ErrorContext(r.Context(), "encode response", slog.Int("status", status), logger.Error(err))
	}
}

// writeError logs client errors at warn and server errors at error level.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, msg := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	log.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logger.Error(err),
	)
	writeJSON(w, r, log, status, errorResponse{Error: msg})
}

const maxBodySize = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return HTTPError{Code: http.StatusBadRequest, Key: "invalid request body"}
	}
	return nil
}
