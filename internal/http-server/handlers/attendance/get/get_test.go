package get

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-service/internal/models"
	"attendance-service/internal/service"
	"attendance-service/pkg/response"
)

type fakeGetter struct{}

func (fakeGetter) GetCurrentStatus(_ context.Context, ref models.SessionRef, userID string) (*service.CurrentStatus, error) {
	if userID == "ghost" {
		return nil, fmt.Errorf("service.GetCurrentStatus: %w", response.ErrNotFound)
	}
	return &service.CurrentStatus{
		SessionType:        ref.Type,
		SessionID:          ref.ID,
		UserID:             userID,
		Status:             models.AttendancePartial,
		Percentage:         50,
		ActualMinutes:      30,
		IsCurrentlyPresent: true,
		Live:               true,
	}, nil
}

func serve(path string) *httptest.ResponseRecorder {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	router.Get("/sessions/{type}/{id}/attendance/{user}", New(log, fakeGetter{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestGet_OK(t *testing.T) {
	w := serve("/sessions/quran/s1/attendance/u1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Attendance)
	assert.Equal(t, models.AttendancePartial, resp.Attendance.Status)
	assert.True(t, resp.Attendance.Live)
	assert.Equal(t, 30, resp.Attendance.ActualMinutes)
}

func TestGet_Errors(t *testing.T) {
	w := serve("/sessions/quran/s1/attendance/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve("/sessions/lecture/s1/attendance/u1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
