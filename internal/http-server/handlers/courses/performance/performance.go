package performance

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

type TrendGetter interface {
	CoursePerformanceTrend(ctx context.Context, courseID, studentID string) (stats.PerformanceTrend, error)
}

type Response struct {
	response.Response
	Trend *stats.PerformanceTrend `json:"trend,omitempty"`
}

func New(log *slog.Logger, getter TrendGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.courses.performance.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		courseID := chi.URLParam(r, "id")
		studentID := r.URL.Query().Get("student_id")

		tr, err := getter.CoursePerformanceTrend(r.Context(), courseID, studentID)
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to get performance trend")
			return
		}

		log.Info("Performance trend retrieved", slog.String("course_id", courseID), slog.Float64("improvement", tr.Improvement))

		render.JSON(w, r, Response{
			Trend: &tr,
		})
	}
}
