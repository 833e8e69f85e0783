package export

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"attendance-service/api"
	"attendance-service/internal/http-server/handlers"
	"attendance-service/internal/models"
	"attendance-service/internal/service"
	"attendance-service/pkg/response"
)

type SessionExporter interface {
	ExportSession(ctx context.Context, ref models.SessionRef) ([]service.ExportRow, error)
}

type Response struct {
	response.Response
	Rows []api.ExportRow `json:"rows"`
}

func New(log *slog.Logger, exporter SessionExporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sessions.export.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ref, ok := handlers.SessionRef(r)
		if !ok {
			handlers.BadSession(w, r, log)
			return
		}

		rows, err := exporter.ExportSession(r.Context(), ref)
		if err != nil {
			handlers.RenderError(w, r, log, err, "failed to export session")
			return
		}

		out := make([]api.ExportRow, len(rows))
		for i, row := range rows {
			out[i] = api.ExportRow{
				UserID:    row.UserID,
				IsStudent: row.IsStudent,
				Presence:  api.NewPresenceResponse(row.Presence),
				Report:    api.NewReportResponse(row.Report),
			}
		}

		log.Info("Session exported", slog.String("session", ref.String()), slog.Int("rows", len(out)))

		render.JSON(w, r, Response{
			Rows: out,
		})
	}
}
