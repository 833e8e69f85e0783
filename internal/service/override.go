package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
)

type Override struct {
	Session   models.SessionRef
	StudentID string
	Status    models.AttendanceStatus
	Reason    string
	// OverriddenBy is the teacher or admin making the correction.
	OverriddenBy string
	// PerformanceMetric is optional and, when set, replaces the stored
	// metric.
	PerformanceMetric *float64
}

// OverrideStatus sets the student's status by hand. The report is created
// when missing and stays manually evaluated until ResetOverride.
func (s *Service) OverrideStatus(ctx context.Context, o Override) (*models.AttendanceReport, error) {
	const op = "service.OverrideStatus"

	if !o.Status.Valid() {
		return nil, fmt.Errorf("%s: %q: %w", op, o.Status, response.ErrInvalidStatus)
	}
	if _, err := s.registry.Kind(o.Session.Type); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	roster, err := s.lookup(ctx, o.Session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !roster.IsStudent(o.StudentID) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotEnrolled)
	}

	release, err := s.acquire(ctx, o.Session, o.StudentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	report, err := s.reportFor(ctx, roster, o.StudentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// a new report needs a teacher to belong to
	if report.ID == "" && roster.TeacherID == "" {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNoTeacher)
	}

	reason := o.Reason
	report.Status = o.Status
	report.ManuallyEvaluated = true
	report.OverrideReason = &reason
	if o.OverriddenBy != "" {
		by := o.OverriddenBy
		report.OverriddenBy = &by
	}
	if o.PerformanceMetric != nil {
		v := *o.PerformanceMetric
		report.PerformanceMetric = &v
	}
	if report.TeacherID == "" {
		report.TeacherID = roster.TeacherID
	}
	if report.AcademyID == "" {
		report.AcademyID = roster.AcademyID
	}

	if err := s.reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("%s: save report: %w", op, err)
	}

	s.log.Info("attendance overridden",
		slog.String("op", op),
		slog.String("session", o.Session.String()),
		slog.String("student_id", o.StudentID),
		slog.String("status", string(o.Status)),
		slog.String("overridden_by", o.OverriddenBy),
	)
	s.marked(ctx, report)

	return report, nil
}

// ResetOverride drops a manual override and reclassifies the report from
// presence. The performance metric is kept.
func (s *Service) ResetOverride(ctx context.Context, ref models.SessionRef, studentID string) (*models.AttendanceReport, error) {
	const op = "service.ResetOverride"

	kind, err := s.registry.Kind(ref.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	roster, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	release, err := s.acquire(ctx, ref, studentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	report, err := s.reports.GetReport(ctx, ref, studentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !report.ManuallyEvaluated {
		return report, nil
	}

	report.ManuallyEvaluated = false
	report.OverrideReason = nil
	report.OverriddenBy = nil
	if err := s.reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("%s: save report: %w", op, err)
	}

	rec, err := s.presence.GetPresence(ctx, ref, studentID)
	if errors.Is(err, response.ErrNotFound) {
		rec = nil
	} else if err != nil {
		return nil, fmt.Errorf("%s: get presence: %w", op, err)
	}

	finalize := roster.Status == models.SessionCompleted
	if _, err := s.reconcile(ctx, roster, kind.Context(ctx, roster), studentID, rec, finalize); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	report, err = s.reports.GetReport(ctx, ref, studentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}
