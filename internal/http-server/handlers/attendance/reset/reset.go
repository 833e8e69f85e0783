package reset

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"attendance-service/api"
	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/models"
	"attendance-service/pkg/response"
)

type OverrideResetter interface {
	ResetOverride(ctx context.Context, ref models.SessionRef, studentID string) (*models.AttendanceReport, error)
}

type Response struct {
	response.Response
	Report *api.ReportResponse `json:"report,omitempty"`
}

func New(log *slog.Logger, resetter OverrideResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.reset.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ref, ok := handlers.SessionRef(r)
		if !ok {
			handlers.BadSession(w, r, log)
			return
		}
		studentID := chi.URLParam(r, "user")

		report, err := resetter.ResetOverride(r.Context(), ref, studentID)
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to reset override")
			return
		}

		log.Info("Override reset", slog.String("session", ref.String()), slog.String("student_id", studentID))

		render.JSON(w, r, Response{
			Report: api.NewReportResponse(report),
		})
	}
}
