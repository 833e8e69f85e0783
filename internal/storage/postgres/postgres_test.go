package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
)

var ref = models.SessionRef{Type: models.SessionQuran, ID: "s1"}

func newMock(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return NewFromDB(db), mock
}

var presenceCols = []string{
	"session_type", "session_id", "user_id", "first_join_time", "last_leave_time",
	"cumulative_duration_minutes", "join_count", "leave_count", "is_currently_present", "cycles", "updated_at",
}

var reportCols = []string{
	"id", "session_id", "student_id", "teacher_id", "academy_id", "attendance_status",
	"attendance_percentage", "actual_attendance_minutes", "meeting_enter_time", "meeting_leave_time",
	"is_late", "late_minutes", "memorization_degree", "manually_evaluated", "override_reason", "overridden_by",
	"is_calculated", "created_at", "updated_at",
}

func TestGetPresence(t *testing.T) {
	s, mock := newMock(t)
	join := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM meeting_attendances WHERE session_type = \$1 AND session_id = \$2 AND user_id = \$3`).
		WithArgs("quran", "s1", "u1").
		WillReturnRows(sqlmock.NewRows(presenceCols).AddRow(
			"quran", "s1", "u1", join, nil, 0, 1, 0, true,
			[]byte(`[{"joined_at":"2026-03-02T10:05:00Z"}]`), join,
		))

	p, err := s.GetPresence(context.Background(), ref, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionQuran, p.SessionType)
	assert.True(t, p.IsCurrentlyPresent)
	require.NotNil(t, p.FirstJoinTime)
	assert.Equal(t, join, *p.FirstJoinTime)
	assert.Nil(t, p.LastLeaveTime)
	require.Len(t, p.Cycles, 1)
	assert.True(t, p.Cycles[0].Open())
	assert.NotNil(t, p.OpenCycle())
}

func TestGetPresence_NotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM meeting_attendances`).
		WithArgs("quran", "s1", "u1").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetPresence(context.Background(), ref, "u1")
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestSavePresence(t *testing.T) {
	s, mock := newMock(t)
	updated := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO meeting_attendances (.+) ON CONFLICT \(session_type, session_id, user_id\)`).
		WithArgs("quran", "s1", "u1", sqlmock.AnyArg(), sqlmock.AnyArg(), 55, 1, 1, false, []byte(`[]`)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	p := &models.PresenceRecord{
		SessionType:               models.SessionQuran,
		SessionID:                 "s1",
		UserID:                    "u1",
		CumulativeDurationMinutes: 55,
		JoinCount:                 1,
		LeaveCount:                1,
	}
	require.NoError(t, s.SavePresence(context.Background(), p))
	assert.Equal(t, updated, p.UpdatedAt)
}

func TestGetReport_UsesTypeTable(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) memorization_degree, (.+) FROM quran_session_reports WHERE session_id = \$1 AND student_id = \$2`).
		WithArgs("s1", "u1").
		WillReturnRows(sqlmock.NewRows(reportCols).AddRow(
			"8a4b1c2e-0000-4000-8000-000000000001", "s1", "u1", "t1", "a1", "present",
			91.67, 55, now, now, false, 0, 7.5, true, "manual note", "t1",
			true, now, now,
		))

	r, err := s.GetReport(context.Background(), ref, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionQuran, r.SessionType)
	assert.Equal(t, models.AttendancePresent, r.Status)
	assert.InDelta(t, 91.67, r.AttendancePercentage, 0.001)
	require.NotNil(t, r.PerformanceMetric)
	assert.Equal(t, 7.5, *r.PerformanceMetric)
	require.NotNil(t, r.OverrideReason)
	assert.Equal(t, "manual note", *r.OverrideReason)
}

func TestGetReport_InvalidType(t *testing.T) {
	s, _ := newMock(t)

	_, err := s.GetReport(context.Background(), models.SessionRef{Type: "webinar", ID: "s1"}, "u1")
	assert.ErrorIs(t, err, response.ErrInvalidType)
}

func TestSaveReport(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO academic_session_reports \(.+student_performance_grade.+\) VALUES .+ ON CONFLICT \(session_id, student_id\)`).
		WithArgs(sqlmock.AnyArg(), "s2", "u1", "t1", "a1", "partial", 50.0, 30,
			sqlmock.AnyArg(), sqlmock.AnyArg(), true, 20, nil, false, nil, nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("existing-id", now, now))

	r := &models.AttendanceReport{
		SessionType:             models.SessionAcademic,
		SessionID:               "s2",
		StudentID:               "u1",
		TeacherID:               "t1",
		AcademyID:               "a1",
		Status:                  models.AttendancePartial,
		AttendancePercentage:    50,
		ActualAttendanceMinutes: 30,
		IsLate:                  true,
		LateMinutes:             20,
	}
	require.NoError(t, s.SaveReport(context.Background(), r))
	assert.Equal(t, "existing-id", r.ID)
	assert.Equal(t, now, r.CreatedAt)
}

func TestSaveReport_ForeignKey(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO quran_session_reports`).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "quran_session_reports_student_fk"})

	err := s.SaveReport(context.Background(), &models.AttendanceReport{
		SessionType: models.SessionQuran,
		SessionID:   "s1",
		StudentID:   "deleted",
		Status:      models.AttendanceAbsent,
	})
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestListReportsForSessions(t *testing.T) {
	s, mock := newMock(t)

	got, err := s.ListReportsForSessions(context.Background(), models.SessionInteractive, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	cols := append([]string(nil), reportCols...)
	cols[12] = "homework_degree"

	mock.ExpectQuery(`FROM interactive_session_reports WHERE session_id = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"a", "b"})).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("id-1", "a", "u1", "t1", "a1", "late", 90.0, 54, now, now, true, 20, nil, false, nil, nil, true, now, now).
			AddRow("id-2", "b", "u1", "t1", "a1", "absent", 0.0, 0, nil, nil, false, 0, 6.0, false, nil, nil, true, now, now))

	got, err = s.ListReportsForSessions(context.Background(), models.SessionInteractive, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].PerformanceMetric)
	assert.Nil(t, got[1].MeetingEnterTime)
	assert.Equal(t, models.SessionInteractive, got[1].SessionType)
}

func TestResetCalculated(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE quran_session_reports SET is_calculated = FALSE`).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, s.ResetCalculated(context.Background(), ref))
}

func TestRoster(t *testing.T) {
	s, mock := newMock(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT course_id, teacher_id, academy_id, scheduled_at, duration_minutes, status FROM sessions`).
		WithArgs("quran", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "teacher_id", "academy_id", "scheduled_at", "duration_minutes", "status"}).
			AddRow("", "t1", "a1", start, 60, "ongoing"))
	mock.ExpectQuery(`SELECT student_id FROM session_students`).
		WithArgs("quran", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("u1").AddRow("u2"))

	r, err := s.Roster(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "t1", r.TeacherID)
	assert.Equal(t, models.SessionOngoing, r.Status)
	assert.Equal(t, []string{"u1", "u2"}, r.StudentIDs)
	assert.Equal(t, start.Add(time.Hour), r.ScheduledEnd())
}

func TestAcademySettings_Nulls(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM academy_settings WHERE academy_id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"default_late_tolerance_minutes", "attendance_threshold_percent"}).
			AddRow(nil, 75.0))

	a, err := s.AcademySettings(context.Background(), "a1")
	require.NoError(t, err)
	assert.Nil(t, a.GracePeriodMinutes)
	require.NotNil(t, a.AttendanceThresholdPercent)
	assert.Equal(t, 75.0, *a.AttendanceThresholdPercent)
}

func TestCourseStudents_UnknownCourse(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := s.CourseStudents(context.Background(), "c1")
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestCompletedSessions(t *testing.T) {
	s, mock := newMock(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	mock.ExpectQuery(`FROM sessions WHERE status = \$1 AND scheduled_at BETWEEN \$2 AND \$3`).
		WithArgs("completed", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"session_type", "session_id"}).
			AddRow("academic", "s2").
			AddRow("quran", "s1"))

	refs, err := s.CompletedSessions(context.Background(), since, until)
	require.NoError(t, err)
	assert.Equal(t, []models.SessionRef{
		{Type: models.SessionAcademic, ID: "s2"},
		{Type: models.SessionQuran, ID: "s1"},
	}, refs)
}
