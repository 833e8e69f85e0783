package policy

import (
	"context"
	"errors"
	"log/slog"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
	"attendance-service/pkg/sl"
)

type SettingsProvider interface {
	AcademySettings(ctx context.Context, academyID string) (*models.AcademySettings, error)
}

type CourseDirectory interface {
	CourseAcademy(ctx context.Context, courseID string) (string, error)
}

// ThresholdResolver supplies the grace period and attendance threshold for
// a session. Implementations never fail: a lookup problem resolves to the
// fallback thresholds.
type ThresholdResolver interface {
	Resolve(ctx context.Context, roster *models.Roster) Thresholds
}

// AcademyResolver reads the thresholds from the session's own academy.
type AcademyResolver struct {
	log      *slog.Logger
	settings SettingsProvider
	fallback Thresholds
}

func NewAcademyResolver(log *slog.Logger, settings SettingsProvider, fallback Thresholds) *AcademyResolver {
	return &AcademyResolver{log: log, settings: settings, fallback: fallback}
}

func (r *AcademyResolver) Resolve(ctx context.Context, roster *models.Roster) Thresholds {
	return r.forAcademy(ctx, roster.AcademyID)
}

func (r *AcademyResolver) forAcademy(ctx context.Context, academyID string) Thresholds {
	const op = "policy.AcademyResolver.Resolve"

	if academyID == "" || r.settings == nil {
		return r.fallback
	}

	s, err := r.settings.AcademySettings(ctx, academyID)
	if err != nil {
		if !errors.Is(err, response.ErrNotFound) {
			r.log.Warn("academy settings lookup failed, using defaults",
				slog.String("op", op),
				slog.String("academy_id", academyID),
				sl.Err(err),
			)
		}
		return r.fallback
	}

	t := r.fallback
	if s.GracePeriodMinutes != nil && *s.GracePeriodMinutes >= 0 {
		t.GraceMinutes = *s.GracePeriodMinutes
	}
	if p := s.AttendanceThresholdPercent; p != nil && *p > 0 && *p <= 100 {
		t.ThresholdPercent = *p
	}

	return t
}

// CourseResolver reads the thresholds from the academy that owns the
// session's course.
type CourseResolver struct {
	log     *slog.Logger
	courses CourseDirectory
	academy *AcademyResolver
}

func NewCourseResolver(log *slog.Logger, courses CourseDirectory, academy *AcademyResolver) *CourseResolver {
	return &CourseResolver{log: log, courses: courses, academy: academy}
}

func (r *CourseResolver) Resolve(ctx context.Context, roster *models.Roster) Thresholds {
	const op = "policy.CourseResolver.Resolve"

	if roster.CourseID == "" || r.courses == nil {
		return r.academy.forAcademy(ctx, roster.AcademyID)
	}

	academyID, err := r.courses.CourseAcademy(ctx, roster.CourseID)
	if err != nil {
		r.log.Warn("course academy lookup failed, using session academy",
			slog.String("op", op),
			slog.String("course_id", roster.CourseID),
			sl.Err(err),
		)
		return r.academy.forAcademy(ctx, roster.AcademyID)
	}

	return r.academy.forAcademy(ctx, academyID)
}
