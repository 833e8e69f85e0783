package postgres

import (
	"context"
	"fmt"
	"time"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
)

// #### rosters ####

func (s *Storage) Roster(ctx context.Context, ref models.SessionRef) (*models.Roster, error) {
	const op = "storage.postgres.Roster"

	r := models.Roster{SessionType: ref.Type, SessionID: ref.ID}

	err := s.db.QueryRowContext(ctx,
		`SELECT course_id, teacher_id, academy_id, scheduled_at, duration_minutes, status
		FROM sessions WHERE session_type = $1 AND session_id = $2`,
		string(ref.Type), ref.ID,
	).Scan(&r.CourseID, &r.TeacherID, &r.AcademyID, &r.ScheduledStart, &r.ExpectedDurationMinutes, &r.Status)
	if err != nil {
		return nil, mapError(op, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id FROM session_students
		WHERE session_type = $1 AND session_id = $2
		ORDER BY student_id`,
		string(ref.Type), ref.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: students: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.StudentIDs = append(r.StudentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &r, nil
}

func (s *Storage) CompletedSessions(ctx context.Context, since, until time.Time) ([]models.SessionRef, error) {
	const op = "storage.postgres.CompletedSessions"

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_type, session_id FROM sessions
		WHERE status = $1 AND scheduled_at BETWEEN $2 AND $3
		ORDER BY session_type, session_id`,
		string(models.SessionCompleted), since, until,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.SessionRef, 0)
	for rows.Next() {
		var ref models.SessionRef
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// #### academy settings ####

func (s *Storage) AcademySettings(ctx context.Context, academyID string) (*models.AcademySettings, error) {
	const op = "storage.postgres.AcademySettings"

	a := models.AcademySettings{AcademyID: academyID}

	err := s.db.QueryRowContext(ctx,
		`SELECT default_late_tolerance_minutes, attendance_threshold_percent
		FROM academy_settings WHERE academy_id = $1`,
		academyID,
	).Scan(&a.GracePeriodMinutes, &a.AttendanceThresholdPercent)
	if err != nil {
		return nil, mapError(op, err)
	}

	return &a, nil
}

// #### courses ####

func (s *Storage) CourseAcademy(ctx context.Context, courseID string) (string, error) {
	const op = "storage.postgres.CourseAcademy"

	var academyID string
	err := s.db.QueryRowContext(ctx,
		`SELECT academy_id FROM courses WHERE course_id = $1`, courseID,
	).Scan(&academyID)
	if err != nil {
		return "", mapError(op, err)
	}

	return academyID, nil
}

func (s *Storage) CourseStudents(ctx context.Context, courseID string) ([]string, error) {
	const op = "storage.postgres.CourseStudents"

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM courses WHERE course_id = $1)`, courseID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id FROM course_enrollments WHERE course_id = $1 ORDER BY student_id`, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Storage) CourseSessions(ctx context.Context, courseID string) ([]models.CourseSession, error) {
	const op = "storage.postgres.CourseSessions"

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, scheduled_at, status FROM sessions
		WHERE session_type = $1 AND course_id = $2
		ORDER BY scheduled_at`,
		string(models.SessionInteractive), courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.CourseSession, 0)
	for rows.Next() {
		var cs models.CourseSession
		if err := rows.Scan(&cs.SessionID, &cs.ScheduledStart, &cs.Status); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
