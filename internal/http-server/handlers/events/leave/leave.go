package leave

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"attendance-service/api"
	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/models"
	"attendance-service/internal/service"
	"attendance-service/pkg/response"
	"attendance-service/pkg/sl"
)

type LeaveHandler interface {
	HandleLeave(ctx context.Context, ev service.PresenceEvent) (*models.PresenceRecord, error)
}

type Request struct {
	api.PresenceEventRequest
}

type Response struct {
	response.Response
	Presence *api.PresenceResponse `json:"presence,omitempty"`
	// Ignored is set when the user had no presence to close.
	Ignored bool `json:"ignored,omitempty"`
}

func New(log *slog.Logger, leaver LeaveHandler) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.events.leave.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if !errors.As(err, &validateErr) {
				log.Error("Failed to validate request", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid request"))
				return
			}
			log.Error("Invalid request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}

		rec, err := leaver.HandleLeave(r.Context(), req.Event())
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to record leave")
			return
		}

		if rec == nil {
			log.Info("Leave ignored, no presence", slog.String("session_id", req.SessionID), slog.String("user_id", req.UserID))
			render.JSON(w, r, Response{Ignored: true})
			return
		}

		log.Info("Leave recorded", slog.String("session_id", req.SessionID), slog.String("user_id", req.UserID))

		render.JSON(w, r, Response{
			Presence: api.NewPresenceResponse(rec),
		})
	}
}
