package performance

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-service/internal/stats"
)

type fakeTrend struct {
	course, student string
}

func (f *fakeTrend) CoursePerformanceTrend(_ context.Context, courseID, studentID string) (stats.PerformanceTrend, error) {
	f.course, f.student = courseID, studentID
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return stats.PerformanceTrend{
		Sessions: 2,
		Points: []stats.SessionPerformance{
			{SessionID: "i1", ScheduledStart: base, Average: 6, Evaluated: 2},
			{SessionID: "i2", ScheduledStart: base.AddDate(0, 0, 7), Average: 7.5, Evaluated: 2},
		},
	}, nil
}

func TestPerformance_ReturnsSeries(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fakeTrend{}
	router := chi.NewRouter()
	router.Get("/courses/{id}/performance", New(log, f))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses/c1/performance?student_id=u1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "c1", f.course)
	assert.Equal(t, "u1", f.student)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Trend)
	require.Len(t, resp.Trend.Points, 2)
	assert.Equal(t, "i1", resp.Trend.Points[0].SessionID)
	assert.Equal(t, 7.5, resp.Trend.Points[1].Average)
}
