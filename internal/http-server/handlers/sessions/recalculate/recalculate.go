package recalculate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/models"
	"attendance-service/internal/service"
	"attendance-service/pkg/response"
)

type SessionRecalculator interface {
	RecalculateSession(ctx context.Context, ref models.SessionRef) (*service.BatchResult, error)
}

type Response struct {
	response.Response
	Result *service.BatchResult `json:"result,omitempty"`
}

func New(log *slog.Logger, recalculator SessionRecalculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sessions.recalculate.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ref, ok := handlers.SessionRef(r)
		if !ok {
			handlers.BadSession(w, r, log)
			return
		}

		res, err := recalculator.RecalculateSession(r.Context(), ref)
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to recalculate session")
			return
		}

		log.Info("Session recalculated",
			slog.String("session", ref.String()),
			slog.Int("processed", res.Processed),
			slog.Int("failed", res.Failed),
		)

		render.JSON(w, r, Response{
			Result: res,
		})
	}
}
