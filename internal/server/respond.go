package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/rs/zerolog"
)

type envelope struct {
	Data    any    `json:"data,omitempty"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrPlanPaused),
		errors.Is(err, model.ErrPlanExpired),
		errors.Is(err, model.ErrPlanDeleted):
		return http.StatusConflict
	case errors.Is(err, reminder.ErrSchedulerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, envelope{Error: msg})
}

// writeResult answers a mutation. A scheduler outage after a committed change
// is reported as 202 with a warning; the sweep completes the scheduling.
func writeResult(w http.ResponseWriter, log zerolog.Logger, status int, data any, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, envelope{Data: data})
	case errors.Is(err, reminder.ErrSchedulerUnavailable) && data != nil:
		log.Warn().Err(err).Msg("change committed, scheduling deferred")
		writeJSON(w, http.StatusAccepted, envelope{Data: data, Warning: "reminder scheduling deferred"})
	default:
		writeError(w, log, err)
	}
}
