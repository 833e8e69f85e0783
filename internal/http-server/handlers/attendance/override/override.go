package override

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"attendance-service/api"
	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/models"
	"attendance-service/internal/service"
	"attendance-service/pkg/response"
	"attendance-service/pkg/sl"
)

type StatusOverrider interface {
	OverrideStatus(ctx context.Context, o service.Override) (*models.AttendanceReport, error)
}

type Request struct {
	api.OverrideRequest
}

type Response struct {
	response.Response
	Report *api.ReportResponse `json:"report,omitempty"`
}

func New(log *slog.Logger, overrider StatusOverrider) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.override.New"

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

		report, err := overrider.OverrideStatus(r.Context(), service.Override{
			Session:           ref,
			StudentID:         studentID,
			Status:            models.AttendanceStatus(req.Status),
			Reason:            req.Reason,
			OverriddenBy:      req.OverriddenBy,
			PerformanceMetric: req.PerformanceMetric,
		})
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to override attendance")
			return
		}

		log.Info("Attendance overridden",
			slog.String("session", ref.String()),
			slog.String("student_id", studentID),
			slog.String("status", req.Status),
		)

		render.JSON(w, r, Response{
			Report: api.NewReportResponse(report),
		})
	}
}
