package statistics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/models"
	"attendance-service/internal/stats"
	"attendance-service/pkg/response"
)

type StatisticsGetter interface {
	SessionStatistics(ctx context.Context, ref models.SessionRef) (stats.SessionStats, error)
}

type Response struct {
	response.Response
	Statistics *stats.SessionStats `json:"statistics,omitempty"`
}

func New(log *slog.Logger, getter StatisticsGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sessions.statistics.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ref, ok := handlers.SessionRef(r)
		if !ok {
			handlers.BadSession(w, r, log)
			return
		}

		st, err := getter.SessionStatistics(r.Context(), ref)
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to get statistics")
			return
		}

		log.Info("Statistics retrieved", slog.String("session", ref.String()), slog.Int("total", st.Total))

		render.JSON(w, r, Response{
			Statistics: &st,
		})
	}
}
