package service

import (
	"context"
	"fmt"

	"attendance-service/internal/models"
	"attendance-service/internal/stats"
)

func (s *Service) SessionStatistics(ctx context.Context, ref models.SessionRef) (stats.SessionStats, error) {
	const op = "service.SessionStatistics"

	if _, err := s.registry.Kind(ref.Type); err != nil {
		return stats.SessionStats{}, fmt.Errorf("%s: %w", op, err)
	}

	reports, err := s.reports.ListReports(ctx, ref)
	if err != nil {
		return stats.SessionStats{}, fmt.Errorf("%s: %w", op, err)
	}
	return stats.Session(reports), nil
}

// CourseAttendance covers the interactive sessions of a course. An empty
// studentID gives the per-seat rate over all enrolled students.
func (s *Service) CourseAttendance(ctx context.Context, courseID, studentID string) (stats.CourseAttendance, error) {
	const op = "service.CourseAttendance"

	sessions, reports, err := s.courseReports(ctx, courseID)
	if err != nil {
		return stats.CourseAttendance{}, fmt.Errorf("%s: %w", op, err)
	}
	enrolled, err := s.courses.CourseStudents(ctx, courseID)
	if err != nil {
		return stats.CourseAttendance{}, fmt.Errorf("%s: students: %w", op, err)
	}

	return stats.Course(sessions, reports, enrolled, studentID), nil
}

// CoursePerformanceTrend returns the per-session performance series of the
// completed sessions and compares their first and second half. An empty
// studentID averages over the whole class.
func (s *Service) CoursePerformanceTrend(ctx context.Context, courseID, studentID string) (stats.PerformanceTrend, error) {
	const op = "service.CoursePerformanceTrend"

	sessions, reports, err := s.courseReports(ctx, courseID)
	if err != nil {
		return stats.PerformanceTrend{}, fmt.Errorf("%s: %w", op, err)
	}

	return stats.Trend(sessions, reports, studentID), nil
}

func (s *Service) courseReports(ctx context.Context, courseID string) ([]models.CourseSession, []*models.AttendanceReport, error) {
	sessions, err := s.courses.CourseSessions(ctx, courseID)
	if err != nil {
		return nil, nil, fmt.Errorf("sessions: %w", err)
	}

	ids := make([]string, 0, len(sessions))
	for _, cs := range sessions {
		if cs.Status == models.SessionCompleted {
			ids = append(ids, cs.SessionID)
		}
	}

	reports, err := s.reports.ListReportsForSessions(ctx, models.SessionInteractive, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("reports: %w", err)
	}
	return sessions, reports, nil
}
