package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"attendance-service/internal/models"
	"attendance-service/pkg/response"
)

// CurrentStatus is the attendance of one user as it stands right now.
type CurrentStatus struct {
	SessionType        models.SessionType      `json:"session_type"`
	SessionID          string                  `json:"session_id"`
	UserID             string                  `json:"user_id"`
	Status             models.AttendanceStatus `json:"status"`
	Percentage         float64                 `json:"attendance_percentage"`
	ActualMinutes      int                     `json:"actual_attendance_minutes"`
	IsLate             bool                    `json:"is_late"`
	LateMinutes        int                     `json:"late_minutes"`
	IsCurrentlyPresent bool                    `json:"is_currently_present"`
	JoinCount          int                     `json:"join_count"`
	FirstJoinTime      *time.Time              `json:"first_join_time,omitempty"`
	LastLeaveTime      *time.Time              `json:"last_leave_time,omitempty"`
	ManuallyEvaluated  bool                    `json:"manually_evaluated"`
	OverrideReason     *string                 `json:"override_reason,omitempty"`
	// Finalized is set when the values come from a calculated report of a
	// completed session.
	Finalized bool `json:"finalized"`
	// Live is set when the values include the cycle still in progress.
	Live bool `json:"live"`
}

// GetCurrentStatus combines live presence with the stored report. For a
// completed session a finalized report wins over any presence still marked
// open. A manual override always wins over computed values.
func (s *Service) GetCurrentStatus(ctx context.Context, ref models.SessionRef, userID string) (*CurrentStatus, error) {
	const op = "service.GetCurrentStatus"

	kind, err := s.registry.Kind(ref.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	roster, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := s.presence.GetPresence(ctx, ref, userID)
	if errors.Is(err, response.ErrNotFound) {
		rec = nil
	} else if err != nil {
		return nil, fmt.Errorf("%s: get presence: %w", op, err)
	}

	report, err := s.reports.GetReport(ctx, ref, userID)
	if errors.Is(err, response.ErrNotFound) {
		report = nil
	} else if err != nil {
		return nil, fmt.Errorf("%s: get report: %w", op, err)
	}

	if rec == nil && report == nil {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	st := &CurrentStatus{
		SessionType: ref.Type,
		SessionID:   ref.ID,
		UserID:      userID,
		Status:      models.AttendanceUnevaluated,
	}
	if rec != nil {
		st.IsCurrentlyPresent = rec.IsCurrentlyPresent
		st.JoinCount = rec.JoinCount
		st.FirstJoinTime = rec.FirstJoinTime
		st.LastLeaveTime = rec.LastLeaveTime
	}

	if report != nil && roster.Status == models.SessionCompleted && (report.IsCalculated || report.ManuallyEvaluated) {
		fromReport(st, report)
		st.IsCurrentlyPresent = false
		st.Finalized = true
		return st, nil
	}

	if report != nil && (report.ManuallyEvaluated || rec == nil) {
		fromReport(st, report)
		return st, nil
	}

	res := s.policy.Classify(rec, kind.Context(ctx, roster), s.now())
	st.Status = res.Status
	st.Percentage = res.Percentage
	st.ActualMinutes = res.ActualMinutes
	st.IsLate = res.IsLate
	st.LateMinutes = res.LateMinutes
	st.Live = rec.IsCurrentlyPresent

	return st, nil
}

func fromReport(st *CurrentStatus, r *models.AttendanceReport) {
	st.Status = r.Status
	st.Percentage = r.AttendancePercentage
	st.ActualMinutes = r.ActualAttendanceMinutes
	st.IsLate = r.IsLate
	st.LateMinutes = r.LateMinutes
	st.ManuallyEvaluated = r.ManuallyEvaluated
	st.OverrideReason = r.OverrideReason
}

type ExportRow struct {
	UserID    string                   `json:"user_id"`
	IsStudent bool                     `json:"is_student"`
	Presence  *models.PresenceRecord   `json:"presence,omitempty"`
	Report    *models.AttendanceReport `json:"report,omitempty"`
}

// ExportSession lists presence and report side by side for every
// participant and enrolled student, ordered by user id.
func (s *Service) ExportSession(ctx context.Context, ref models.SessionRef) ([]ExportRow, error) {
	const op = "service.ExportSession"

	roster, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	records, err := s.presence.ListPresence(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: list presence: %w", op, err)
	}
	reports, err := s.reports.ListReports(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: list reports: %w", op, err)
	}

	rows := make(map[string]*ExportRow)
	row := func(id string) *ExportRow {
		r, ok := rows[id]
		if !ok {
			r = &ExportRow{UserID: id, IsStudent: roster.IsStudent(id)}
			rows[id] = r
		}
		return r
	}
	for _, id := range roster.StudentIDs {
		row(id)
	}
	for _, p := range records {
		row(p.UserID).Presence = p
	}
	for _, r := range reports {
		row(r.StudentID).Report = r
	}

	out := make([]ExportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })

	return out, nil
}
