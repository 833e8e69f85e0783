package join

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

type JoinHandler interface {
	HandleJoin(ctx context.Context, ev service.PresenceEvent) (*models.PresenceRecord, error)
}

type Request struct {
	api.PresenceEventRequest
}

type Response struct {
	response.Response
	Presence *api.PresenceResponse `json:"presence,omitempty"`
}

func New(log *slog.Logger, joiner JoinHandler) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.events.join.New"

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

		rec, err := joiner.HandleJoin(r.Context(), req.Event())
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to record join")
			return
		}

		log.Info("Join recorded", slog.String("session_id", req.SessionID), slog.String("user_id", req.UserID))

		render.JSON(w, r, Response{
			Presence: api.NewPresenceResponse(rec),
		})
	}
}
