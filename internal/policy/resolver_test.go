package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
)

type fakeSettings map[string]*models.AcademySettings

func (f fakeSettings) AcademySettings(_ context.Context, academyID string) (*models.AcademySettings, error) {
	if academyID == "broken" {
		return nil, errors.New("connection refused")
	}
	s, ok := f[academyID]
	if !ok {
		return nil, response.ErrNotFound
	}
	return s, nil
}

type fakeCourses map[string]string

func (f fakeCourses) CourseAcademy(_ context.Context, courseID string) (string, error) {
	a, ok := f[courseID]
	if !ok {
		return "", response.ErrNotFound
	}
	return a, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_Resolution(t *testing.T) {
	settings := fakeSettings{
		"a1": {AcademyID: "a1", GracePeriodMinutes: ptr(5), AttendanceThresholdPercent: ptr(70.0)},
		"a2": {AcademyID: "a2", GracePeriodMinutes: ptr(10)},
		"a3": {AcademyID: "a3", AttendanceThresholdPercent: ptr(150.0)},
	}
	courses := fakeCourses{"c1": "a1"}
	reg := NewRegistry(discard(), settings, courses, DefaultThresholds)

	tests := []struct {
		name   string
		roster models.Roster
		want   Thresholds
	}{
		{
			name:   "quran uses academy settings",
			roster: models.Roster{SessionType: models.SessionQuran, AcademyID: "a1"},
			want:   Thresholds{GraceMinutes: 5, ThresholdPercent: 70},
		},
		{
			name:   "academic partial settings keep default threshold",
			roster: models.Roster{SessionType: models.SessionAcademic, AcademyID: "a2"},
			want:   Thresholds{GraceMinutes: 10, ThresholdPercent: 80},
		},
		{
			name:   "out of range threshold falls back",
			roster: models.Roster{SessionType: models.SessionAcademic, AcademyID: "a3"},
			want:   DefaultThresholds,
		},
		{
			name:   "missing academy falls back",
			roster: models.Roster{SessionType: models.SessionQuran, AcademyID: "nope"},
			want:   DefaultThresholds,
		},
		{
			name:   "lookup failure falls back",
			roster: models.Roster{SessionType: models.SessionQuran, AcademyID: "broken"},
			want:   DefaultThresholds,
		},
		{
			name:   "interactive resolves through the course academy",
			roster: models.Roster{SessionType: models.SessionInteractive, CourseID: "c1", AcademyID: "a2"},
			want:   Thresholds{GraceMinutes: 5, ThresholdPercent: 70},
		},
		{
			name:   "interactive with unknown course uses session academy",
			roster: models.Roster{SessionType: models.SessionInteractive, CourseID: "zz", AcademyID: "a2"},
			want:   Thresholds{GraceMinutes: 10, ThresholdPercent: 80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := reg.Kind(tt.roster.SessionType)
			require.NoError(t, err)

			sctx := k.Context(context.Background(), &tt.roster)
			assert.Equal(t, tt.want.GraceMinutes, sctx.GracePeriodMinutes)
			assert.Equal(t, tt.want.ThresholdPercent, sctx.AttendanceThresholdPercent)
		})
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := NewRegistry(discard(), nil, nil, DefaultThresholds)

	_, err := reg.Kind("webinar")
	assert.ErrorIs(t, err, response.ErrInvalidType)
}

func TestRegistry_Labels(t *testing.T) {
	reg := NewRegistry(discard(), nil, nil, DefaultThresholds)

	assert.Equal(t, "quran_session_reports", reg[models.SessionQuran].ReportKey)
	assert.Equal(t, "student_performance_grade", reg[models.SessionAcademic].PerformanceLabel)
	assert.Equal(t, "homework_degree", reg[models.SessionInteractive].PerformanceLabel)
}
