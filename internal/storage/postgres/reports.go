package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"attendance-service/internal/models"
	"attendance-service/internal/policy"
	"attendance-service/pkg/response"
)

// reportTable names the table and the performance column of a session
// type. Both come from a fixed set and are safe to format into queries.
func reportTable(t models.SessionType) (string, string, error) {
	table, metric := policy.ReportKey(t), policy.PerformanceLabel(t)
	if table == "" || metric == "" {
		return "", "", fmt.Errorf("%q: %w", t, response.ErrInvalidType)
	}
	return table, metric, nil
}

func selectReports(table, metric string) string {
	return fmt.Sprintf(`SELECT id, session_id, student_id, teacher_id, academy_id, attendance_status,
		attendance_percentage, actual_attendance_minutes, meeting_enter_time, meeting_leave_time,
		is_late, late_minutes, %s, manually_evaluated, override_reason, overridden_by,
		is_calculated, created_at, updated_at
		FROM %s`, metric, table)
}

func scanReport(sc scanner, t models.SessionType) (*models.AttendanceReport, error) {
	r := models.AttendanceReport{SessionType: t}

	err := sc.Scan(
		&r.ID,
		&r.SessionID,
		&r.StudentID,
		&r.TeacherID,
		&r.AcademyID,
		&r.Status,
		&r.AttendancePercentage,
		&r.ActualAttendanceMinutes,
		&r.MeetingEnterTime,
		&r.MeetingLeaveTime,
		&r.IsLate,
		&r.LateMinutes,
		&r.PerformanceMetric,
		&r.ManuallyEvaluated,
		&r.OverrideReason,
		&r.OverriddenBy,
		&r.IsCalculated,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// #### reports ####

func (s *Storage) GetReport(ctx context.Context, ref models.SessionRef, studentID string) (*models.AttendanceReport, error) {
	const op = "storage.postgres.GetReport"

	table, metric, err := reportTable(ref.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	row := s.db.QueryRowContext(ctx,
		selectReports(table, metric)+` WHERE session_id = $1 AND student_id = $2`,
		ref.ID, studentID,
	)

	r, err := scanReport(row, ref.Type)
	if err != nil {
		return nil, mapError(op, err)
	}
	return r, nil
}

// SaveReport upserts by (session, student). A new report gets a fresh id;
// an existing one keeps its id and creation time.
func (s *Storage) SaveReport(ctx context.Context, r *models.AttendanceReport) error {
	const op = "storage.postgres.SaveReport"

	table, metric, err := reportTable(r.SessionType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s
		(id, session_id, student_id, teacher_id, academy_id, attendance_status,
		attendance_percentage, actual_attendance_minutes, meeting_enter_time, meeting_leave_time,
		is_late, late_minutes, %[2]s, manually_evaluated, override_reason, overridden_by, is_calculated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (session_id, student_id)
		DO UPDATE
		SET teacher_id = EXCLUDED.teacher_id,
			academy_id = EXCLUDED.academy_id,
			attendance_status = EXCLUDED.attendance_status,
			attendance_percentage = EXCLUDED.attendance_percentage,
			actual_attendance_minutes = EXCLUDED.actual_attendance_minutes,
			meeting_enter_time = EXCLUDED.meeting_enter_time,
			meeting_leave_time = EXCLUDED.meeting_leave_time,
			is_late = EXCLUDED.is_late,
			late_minutes = EXCLUDED.late_minutes,
			%[2]s = EXCLUDED.%[2]s,
			manually_evaluated = EXCLUDED.manually_evaluated,
			override_reason = EXCLUDED.override_reason,
			overridden_by = EXCLUDED.overridden_by,
			is_calculated = EXCLUDED.is_calculated,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		table, metric,
	)

	err = s.db.QueryRowContext(ctx, query,
		id,
		r.SessionID,
		r.StudentID,
		r.TeacherID,
		r.AcademyID,
		string(r.Status),
		r.AttendancePercentage,
		r.ActualAttendanceMinutes,
		r.MeetingEnterTime,
		r.MeetingLeaveTime,
		r.IsLate,
		r.LateMinutes,
		r.PerformanceMetric,
		r.ManuallyEvaluated,
		r.OverrideReason,
		r.OverriddenBy,
		r.IsCalculated,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return mapError(op, err)
	}

	return nil
}

func (s *Storage) ListReports(ctx context.Context, ref models.SessionRef) ([]*models.AttendanceReport, error) {
	const op = "storage.postgres.ListReports"

	table, metric, err := reportTable(ref.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.queryReports(ctx, op, ref.Type,
		selectReports(table, metric)+` WHERE session_id = $1 ORDER BY student_id`,
		ref.ID,
	)
}

func (s *Storage) ListReportsForSessions(ctx context.Context, t models.SessionType, sessionIDs []string) ([]*models.AttendanceReport, error) {
	const op = "storage.postgres.ListReportsForSessions"

	table, metric, err := reportTable(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(sessionIDs) == 0 {
		return []*models.AttendanceReport{}, nil
	}

	return s.queryReports(ctx, op, t,
		selectReports(table, metric)+` WHERE session_id = ANY($1) ORDER BY session_id, student_id`,
		pq.Array(sessionIDs),
	)
}

func (s *Storage) ResetCalculated(ctx context.Context, ref models.SessionRef) error {
	const op = "storage.postgres.ResetCalculated"

	table, _, err := reportTable(ref.Type)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET is_calculated = FALSE, updated_at = now() WHERE session_id = $1`, table),
		ref.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) queryReports(ctx context.Context, op string, t models.SessionType, query string, args ...any) ([]*models.AttendanceReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]*models.AttendanceReport, 0)
	for rows.Next() {
		r, err := scanReport(rows, t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
