package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/models"
	"attendance-service/internal/service"
	"attendance-service/pkg/response"
)

type StatusGetter interface {
	GetCurrentStatus(ctx context.Context, ref models.SessionRef, userID string) (*service.CurrentStatus, error)
}

type Response struct {
	response.Response
	Attendance *service.CurrentStatus `json:"attendance,omitempty"`
}

func New(log *slog.Logger, getter StatusGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.get.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ref, ok := handlers.SessionRef(r)
		if !ok {
			handlers.BadSession(w, r, log)
			return
		}
		userID := chi.URLParam(r, "user")

		status, err := getter.GetCurrentStatus(r.Context(), ref, userID)
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to get attendance")
			return
		}

		log.Info("Attendance retrieved",
			slog.String("session", ref.String()),
			slog.String("user_id", userID),
			slog.String("status", string(status.Status)),
		)

		render.JSON(w, r, Response{
			Attendance: status,
		})
	}
}
