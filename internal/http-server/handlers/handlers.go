// Package handlers holds what the per-operation handler packages share:
// reading the session from the URL and mapping engine errors to responses.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
	"attendance-service/pkg/sl"
)

// SessionRef reads {type} and {id} from the route.
func SessionRef(r *http.Request) (models.SessionRef, bool) {
	ref := models.SessionRef{
		Type: models.SessionType(chi.URLParam(r, "type")),
		ID:   chi.URLParam(r, "id"),
	}
	return ref, ref.Type.Valid() && ref.ID != ""
}

func BadSession(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	log.Error("invalid session in path")
	w.WriteHeader(http.StatusBadRequest)
	render.JSON(w, r, response.Error(string(response.INVALID_INPUT), "session type must be one of [quran academic interactive]"))
}

// RenderError writes the status and body for an engine error.
func RenderError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, msg string) {
	status, code, text := http.StatusInternalServerError, response.FAILED_REQUEST, msg

	switch {
	case errors.Is(err, response.ErrNotFound):
		status, code, text = http.StatusNotFound, response.NOT_FOUND, "resource not found"
	case errors.Is(err, response.ErrInvalidType):
		status, code, text = http.StatusBadRequest, response.INVALID_INPUT, "invalid session type"
	case errors.Is(err, response.ErrInvalidStatus):
		status, code, text = http.StatusBadRequest, response.INVALID_INPUT, "invalid attendance status"
	case errors.Is(err, response.ErrBadRequest):
		status, code, text = http.StatusBadRequest, response.INVALID_INPUT, "invalid input"
	case errors.Is(err, response.ErrNotEnrolled):
		status, code, text = http.StatusUnprocessableEntity, response.NOT_ENROLLED, "user is not enrolled as a student"
	case errors.Is(err, response.ErrNoTeacher):
		status, code, text = http.StatusUnprocessableEntity, response.NO_TEACHER, "session has no teacher"
	case errors.Is(err, response.ErrLocked):
		status, code, text = http.StatusConflict, response.LOCKED, "attendance record is busy, retry"
	case errors.Is(err, response.ErrRosterLookup):
		status, code, text = http.StatusServiceUnavailable, response.UNAVAILABLE, "session roster unavailable, retry"
	}

	if status >= http.StatusInternalServerError {
		log.Error(msg, sl.Err(err))
	} else {
		log.Warn(msg, sl.Err(err))
	}

	w.WriteHeader(status)
	render.JSON(w, r, response.Error(string(code), text))
}
