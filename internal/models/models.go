package models

import "time"

type SessionType string

const (
	SessionQuran       SessionType = "quran"
	SessionAcademic    SessionType = "academic"
	SessionInteractive SessionType = "interactive"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionQuran, SessionAcademic, SessionInteractive:
		return true
	default:
		return false
	}
}

type AttendanceStatus string

const (
	AttendanceUnevaluated AttendanceStatus = "unevaluated"
	AttendanceAbsent      AttendanceStatus = "absent"
	AttendancePresent     AttendanceStatus = "present"
	AttendanceLate        AttendanceStatus = "late"
	AttendancePartial     AttendanceStatus = "partial"
)

// Valid reports whether s can be assigned by classification or override.
// Unevaluated is only ever set on creation.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceAbsent, AttendancePresent, AttendanceLate, AttendancePartial:
		return true
	default:
		return false
	}
}

// Attended reports whether the status counts toward an attendance rate.
func (s AttendanceStatus) Attended() bool {
	return s == AttendancePresent || s == AttendanceLate
}

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionOngoing   SessionStatus = "ongoing"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// SessionRef identifies a session across the three session tables.
type SessionRef struct {
	Type SessionType
	ID   string
}

func (r SessionRef) String() string {
	return string(r.Type) + ":" + r.ID
}

type Cycle struct {
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

func (c Cycle) Open() bool {
	return c.LeftAt == nil
}

type PresenceRecord struct {
	SessionType               SessionType `db:"session_type"`
	SessionID                 string      `db:"session_id"`
	UserID                    string      `db:"user_id"`
	FirstJoinTime             *time.Time  `db:"first_join_time"`
	LastLeaveTime             *time.Time  `db:"last_leave_time"`
	CumulativeDurationMinutes int         `db:"cumulative_duration_minutes"`
	JoinCount                 int         `db:"join_count"`
	LeaveCount                int         `db:"leave_count"`
	IsCurrentlyPresent        bool        `db:"is_currently_present"`
	Cycles                    []Cycle     `db:"cycles"`
	UpdatedAt                 time.Time   `db:"updated_at"`
}

func (p *PresenceRecord) Ref() SessionRef {
	return SessionRef{Type: p.SessionType, ID: p.SessionID}
}

// OpenCycle returns the trailing open cycle, if any.
func (p *PresenceRecord) OpenCycle() *Cycle {
	if len(p.Cycles) == 0 {
		return nil
	}
	last := &p.Cycles[len(p.Cycles)-1]
	if !last.Open() {
		return nil
	}
	return last
}

type AttendanceReport struct {
	ID                      string           `db:"id"`
	SessionType             SessionType      `db:"session_type"`
	SessionID               string           `db:"session_id"`
	StudentID               string           `db:"student_id"`
	TeacherID               string           `db:"teacher_id"`
	AcademyID               string           `db:"academy_id"`
	Status                  AttendanceStatus `db:"attendance_status"`
	AttendancePercentage    float64          `db:"attendance_percentage"`
	ActualAttendanceMinutes int              `db:"actual_attendance_minutes"`
	MeetingEnterTime        *time.Time       `db:"meeting_enter_time"`
	MeetingLeaveTime        *time.Time       `db:"meeting_leave_time"`
	IsLate                  bool             `db:"is_late"`
	LateMinutes             int              `db:"late_minutes"`
	PerformanceMetric       *float64         `db:"performance_metric"`
	ManuallyEvaluated       bool             `db:"manually_evaluated"`
	OverrideReason          *string          `db:"override_reason"`
	OverriddenBy            *string          `db:"overridden_by"`
	IsCalculated            bool             `db:"is_calculated"`
	CreatedAt               time.Time        `db:"created_at"`
	UpdatedAt               time.Time        `db:"updated_at"`
}

// Roster is the external view of a session: who teaches it, who is enrolled and when it runs.
type Roster struct {
	SessionType             SessionType
	SessionID               string
	CourseID                string
	TeacherID               string
	AcademyID               string
	ScheduledStart          time.Time
	ExpectedDurationMinutes int
	Status                  SessionStatus
	StudentIDs              []string
}

func (r *Roster) Ref() SessionRef {
	return SessionRef{Type: r.SessionType, ID: r.SessionID}
}

func (r *Roster) IsStudent(userID string) bool {
	for _, id := range r.StudentIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Roster) ScheduledEnd() time.Time {
	return r.ScheduledStart.Add(time.Duration(r.ExpectedDurationMinutes) * time.Minute)
}

type AcademySettings struct {
	AcademyID                  string   `db:"academy_id"`
	GracePeriodMinutes         *int     `db:"default_late_tolerance_minutes"`
	AttendanceThresholdPercent *float64 `db:"attendance_threshold_percent"`
}

// SessionContext is the read-only projection passed into classification.
type SessionContext struct {
	SessionID                  string
	SessionType                SessionType
	AcademyID                  string
	ScheduledStart             time.Time
	ExpectedDurationMinutes    int
	GracePeriodMinutes         int
	AttendanceThresholdPercent float64
}

type CourseSession struct {
	SessionID      string        `db:"session_id"`
	ScheduledStart time.Time     `db:"scheduled_at"`
	Status         SessionStatus `db:"status"`
}
