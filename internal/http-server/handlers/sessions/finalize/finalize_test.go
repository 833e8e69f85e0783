package finalize

import (
	"context"
	"encoding/json"
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
)

type fakeFinalizer struct{}

func (fakeFinalizer) FinalizeSession(_ context.Context, ref models.SessionRef) (*service.BatchResult, error) {
	return &service.BatchResult{
		Session:   ref,
		Processed: 5,
		Updated:   4,
		Failed:    1,
		Errors:    []service.RecordError{{UserID: "u3", Error: "save report: constraint"}},
	}, nil
}

func TestFinalize(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	router.Post("/sessions/{type}/{id}/finalize", New(log, fakeFinalizer{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions/academic/s2/finalize", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, 5, resp.Result.Processed)
	assert.Equal(t, 4, resp.Result.Updated)
	require.Len(t, resp.Result.Errors, 1)
	assert.Equal(t, "u3", resp.Result.Errors[0].UserID)
}
