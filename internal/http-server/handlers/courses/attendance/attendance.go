package attendance

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/stats"
	"attendance-service/pkg/response"
)

type CourseAttendanceGetter interface {
	CourseAttendance(ctx context.Context, courseID, studentID string) (stats.CourseAttendance, error)
}

type Response struct {
	response.Response
	Attendance *stats.CourseAttendance `json:"attendance,omitempty"`
}

func New(log *slog.Logger, getter CourseAttendanceGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.courses.attendance.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		courseID := chi.URLParam(r, "id")
		studentID := r.URL.Query().Get("student_id")

		ca, err := getter.CourseAttendance(r.Context(), courseID, studentID)
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to get course attendance")
			return
		}

		log.Info("Course attendance retrieved",
			slog.String("course_id", courseID),
			slog.String("student_id", studentID),
			slog.Float64("rate", ca.Rate),
		)

		render.JSON(w, r, Response{
			Attendance: &ca,
		})
	}
}
