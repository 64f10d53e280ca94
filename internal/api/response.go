package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fystack/jackpot-engine/internal/jackpot"
	"github.com/fystack/jackpot-engine/internal/worker"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
)

type APIErrorResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, jackpot.ErrInvalidStake),
		errors.Is(err, jackpot.ErrConfigValidation):
		return http.StatusBadRequest
	case errors.Is(err, jackpot.ErrRoundLocked),
		errors.Is(err, worker.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, jackpot.ErrRoomNotFound),
		errors.Is(err, jackpot.ErrWinnerNotFound),
		errors.Is(err, payoutstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jackpot.ErrRoomStopped),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error("Request failed", "err", err)
	}
	writeErrorJSON(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "status", statusCode, "err", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, APIErrorResponse{
		Status:    "error",
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}

const maxBodyBytes = 1 << 16

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
