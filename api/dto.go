package api

import (
	"time"

	"attendance-service/internal/models"
	"attendance-service/internal/policy"
	"attendance-service/internal/service"
)

type PresenceEventRequest struct {
	SessionType string     `json:"session_type" validate:"required,oneof=quran academic interactive"`
	SessionID   string     `json:"session_id" validate:"required,max=128"`
	UserID      string     `json:"user_id" validate:"required,max=128"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	EventID     string     `json:"event_id,omitempty" validate:"max=128"`
}

type OverrideRequest struct {
	Status            string   `json:"status" validate:"required,oneof=absent present late partial"`
	Reason            string   `json:"reason" validate:"required,max=500"`
	OverriddenBy      string   `json:"overridden_by" validate:"max=128"`
	PerformanceMetric *float64 `json:"performance_metric,omitempty" validate:"omitempty,gte=0,lte=10"`
}

type Cycle struct {
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

type PresenceResponse struct {
	SessionType               string     `json:"session_type"`
	SessionID                 string     `json:"session_id"`
	UserID                    string     `json:"user_id"`
	FirstJoinTime             *time.Time `json:"first_join_time,omitempty"`
	LastLeaveTime             *time.Time `json:"last_leave_time,omitempty"`
	CumulativeDurationMinutes int        `json:"cumulative_duration_minutes"`
	JoinCount                 int        `json:"join_count"`
	LeaveCount                int        `json:"leave_count"`
	IsCurrentlyPresent        bool       `json:"is_currently_present"`
	Cycles                    []Cycle    `json:"cycles"`
}

// Report sources, so a corrected value is never mistaken for a computed one.
const (
	SourceComputed = "computed"
	SourceManual   = "manual"
)

type ReportResponse struct {
	ID                      string     `json:"id"`
	SessionType             string     `json:"session_type"`
	SessionID               string     `json:"session_id"`
	StudentID               string     `json:"student_id"`
	TeacherID               string     `json:"teacher_id"`
	AcademyID               string     `json:"academy_id"`
	Status                  string     `json:"status"`
	Source                  string     `json:"source"`
	AttendancePercentage    float64    `json:"attendance_percentage"`
	ActualAttendanceMinutes int        `json:"actual_attendance_minutes"`
	MeetingEnterTime        *time.Time `json:"meeting_enter_time,omitempty"`
	MeetingLeaveTime        *time.Time `json:"meeting_leave_time,omitempty"`
	IsLate                  bool       `json:"is_late"`
	LateMinutes             int        `json:"late_minutes"`
	PerformanceMetric       *float64   `json:"performance_metric,omitempty"`
	PerformanceLabel        string     `json:"performance_label"`
	ManuallyEvaluated       bool       `json:"manually_evaluated"`
	OverrideReason          *string    `json:"override_reason,omitempty"`
	OverriddenBy            *string    `json:"overridden_by,omitempty"`
	IsCalculated            bool       `json:"is_calculated"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

type ExportRow struct {
	UserID    string            `json:"user_id"`
	IsStudent bool              `json:"is_student"`
	Presence  *PresenceResponse `json:"presence,omitempty"`
	Report    *ReportResponse   `json:"report,omitempty"`
}

func NewPresenceResponse(p *models.PresenceRecord) *PresenceResponse {
	if p == nil {
		return nil
	}

	cycles := make([]Cycle, len(p.Cycles))
	for i, c := range p.Cycles {
		cycles[i] = Cycle{JoinedAt: c.JoinedAt, LeftAt: c.LeftAt}
	}

	return &PresenceResponse{
		SessionType:               string(p.SessionType),
		SessionID:                 p.SessionID,
		UserID:                    p.UserID,
		FirstJoinTime:             p.FirstJoinTime,
		LastLeaveTime:             p.LastLeaveTime,
		CumulativeDurationMinutes: p.CumulativeDurationMinutes,
		JoinCount:                 p.JoinCount,
		LeaveCount:                p.LeaveCount,
		IsCurrentlyPresent:        p.IsCurrentlyPresent,
		Cycles:                    cycles,
	}
}

func NewReportResponse(r *models.AttendanceReport) *ReportResponse {
	if r == nil {
		return nil
	}

	source := SourceComputed
	if r.ManuallyEvaluated {
		source = SourceManual
	}

	return &ReportResponse{
		ID:                      r.ID,
		SessionType:             string(r.SessionType),
		SessionID:               r.SessionID,
		StudentID:               r.StudentID,
		TeacherID:               r.TeacherID,
		AcademyID:               r.AcademyID,
		Status:                  string(r.Status),
		Source:                  source,
		AttendancePercentage:    r.AttendancePercentage,
		ActualAttendanceMinutes: r.ActualAttendanceMinutes,
		MeetingEnterTime:        r.MeetingEnterTime,
		MeetingLeaveTime:        r.MeetingLeaveTime,
		IsLate:                  r.IsLate,
		LateMinutes:             r.LateMinutes,
		PerformanceMetric:       r.PerformanceMetric,
		PerformanceLabel:        policy.PerformanceLabel(r.SessionType),
		ManuallyEvaluated:       r.ManuallyEvaluated,
		OverrideReason:          r.OverrideReason,
		OverriddenBy:            r.OverriddenBy,
		IsCalculated:            r.IsCalculated,
		UpdatedAt:               r.UpdatedAt,
	}
}

// Event converts the request into the engine's event. A missing timestamp
// stays zero and is filled in with the receive time.
func (r PresenceEventRequest) Event() service.PresenceEvent {
	ev := service.PresenceEvent{
		Session: models.SessionRef{Type: models.SessionType(r.SessionType), ID: r.SessionID},
		UserID:  r.UserID,
		ID:      r.EventID,
	}
	if r.Timestamp != nil {
		ev.At = *r.Timestamp
	}
	return ev
}
