package policy

import (
	"context"
	"fmt"
	"log/slog"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
)

// Kind adapts the engine to one session type.
type Kind struct {
	Type models.SessionType
	// ReportKey names where reports of this type are stored.
	ReportKey string
	// PerformanceLabel is what AttendanceReport.PerformanceMetric means for
	// this type.
	PerformanceLabel string
	Thresholds       ThresholdResolver
}

// Context builds the classification context for a roster.
func (k Kind) Context(ctx context.Context, roster *models.Roster) models.SessionContext {
	t := k.Thresholds.Resolve(ctx, roster)

	return models.SessionContext{
		SessionID:                  roster.SessionID,
		SessionType:                roster.SessionType,
		AcademyID:                  roster.AcademyID,
		ScheduledStart:             roster.ScheduledStart,
		ExpectedDurationMinutes:    roster.ExpectedDurationMinutes,
		GracePeriodMinutes:         t.GraceMinutes,
		AttendanceThresholdPercent: t.ThresholdPercent,
	}
}

type Registry map[models.SessionType]Kind

func NewRegistry(log *slog.Logger, settings SettingsProvider, courses CourseDirectory, fallback Thresholds) Registry {
	academy := NewAcademyResolver(log, settings, fallback)
	course := NewCourseResolver(log, courses, academy)

	return Registry{
		models.SessionQuran: {
			Type:             models.SessionQuran,
			ReportKey:        ReportKey(models.SessionQuran),
			PerformanceLabel: PerformanceLabel(models.SessionQuran),
			Thresholds:       academy,
		},
		models.SessionAcademic: {
			Type:             models.SessionAcademic,
			ReportKey:        ReportKey(models.SessionAcademic),
			PerformanceLabel: PerformanceLabel(models.SessionAcademic),
			Thresholds:       academy,
		},
		models.SessionInteractive: {
			Type:             models.SessionInteractive,
			ReportKey:        ReportKey(models.SessionInteractive),
			PerformanceLabel: PerformanceLabel(models.SessionInteractive),
			Thresholds:       course,
		},
	}
}

func (r Registry) Kind(t models.SessionType) (Kind, error) {
	k, ok := r[t]
	if !ok {
		return Kind{}, fmt.Errorf("policy.Registry.Kind: %q: %w", t, response.ErrInvalidType)
	}
	return k, nil
}

// ReportKey is the storage name for a session type's reports.
func ReportKey(t models.SessionType) string {
	switch t {
	case models.SessionQuran:
		return "quran_session_reports"
	case models.SessionAcademic:
		return "academic_session_reports"
	case models.SessionInteractive:
		return "interactive_session_reports"
	default:
		return ""
	}
}

// PerformanceLabel is what the performance metric means for a session type,
// and the column it is stored in.
func PerformanceLabel(t models.SessionType) string {
	switch t {
	case models.SessionQuran:
		return "memorization_degree"
	case models.SessionAcademic:
		return "student_performance_grade"
	case models.SessionInteractive:
		return "homework_degree"
	default:
		return ""
	}
}
