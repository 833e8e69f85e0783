// Package memory is an in-process implementation of every store and lookup
// the engine depends on. It backs local runs without Postgres and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendance-service/internal/models"
	"attendance-service/internal/policy"
	"attendance-service/pkg/response"
)

type (
	Storage struct {
		presence *presenceTable
		reports  *reportTable
		sessions *sessionTable
		academy  *academyTable
		courses  *courseTable
		clock    func() time.Time
	}

	presenceTable struct {
		sync.RWMutex
		table map[string]*models.PresenceRecord
	}

	reportTable struct {
		sync.RWMutex
		table map[string]*models.AttendanceReport
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*models.Roster
	}

	academyTable struct {
		sync.RWMutex
		table map[string]*models.AcademySettings
	}

	courseTable struct {
		sync.RWMutex
		academy  map[string]string
		students map[string][]string
	}
)

func New() *Storage {
	return &Storage{
		presence: &presenceTable{table: make(map[string]*models.PresenceRecord)},
		reports:  &reportTable{table: make(map[string]*models.AttendanceReport)},
		sessions: &sessionTable{table: make(map[string]*models.Roster)},
		academy:  &academyTable{table: make(map[string]*models.AcademySettings)},
		courses:  &courseTable{academy: make(map[string]string), students: make(map[string][]string)},
		clock:    time.Now,
	}
}

func (s *Storage) Close() error {
	return nil
}

func presenceKey(ref models.SessionRef, userID string) string {
	return ref.String() + "/" + userID
}

func reportKey(ref models.SessionRef, studentID string) string {
	return policy.ReportKey(ref.Type) + "/" + ref.ID + "/" + studentID
}

// #### presence ####

func (s *Storage) GetPresence(_ context.Context, ref models.SessionRef, userID string) (*models.PresenceRecord, error) {
	s.presence.RLock()
	defer s.presence.RUnlock()

	p, ok := s.presence.table[presenceKey(ref, userID)]
	if !ok {
		return nil, response.ErrNotFound
	}
	return copyPresence(p), nil
}

func (s *Storage) SavePresence(_ context.Context, p *models.PresenceRecord) error {
	s.presence.Lock()
	defer s.presence.Unlock()

	c := copyPresence(p)
	c.UpdatedAt = s.clock()
	s.presence.table[presenceKey(p.Ref(), p.UserID)] = c
	return nil
}

func (s *Storage) ListPresence(_ context.Context, ref models.SessionRef) ([]*models.PresenceRecord, error) {
	s.presence.RLock()
	defer s.presence.RUnlock()

	out := make([]*models.PresenceRecord, 0)
	for _, p := range s.presence.table {
		if p.SessionType == ref.Type && p.SessionID == ref.ID {
			out = append(out, copyPresence(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// #### reports ####

func (s *Storage) GetReport(_ context.Context, ref models.SessionRef, studentID string) (*models.AttendanceReport, error) {
	s.reports.RLock()
	defer s.reports.RUnlock()

	r, ok := s.reports.table[reportKey(ref, studentID)]
	if !ok {
		return nil, response.ErrNotFound
	}
	return copyReport(r), nil
}

func (s *Storage) SaveReport(_ context.Context, r *models.AttendanceReport) error {
	s.reports.Lock()
	defer s.reports.Unlock()

	key := reportKey(models.SessionRef{Type: r.SessionType, ID: r.SessionID}, r.StudentID)
	now := s.clock()

	c := copyReport(r)
	if existing, ok := s.reports.table[key]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.reports.table[key] = c
	r.ID = c.ID
	return nil
}

func (s *Storage) ListReports(_ context.Context, ref models.SessionRef) ([]*models.AttendanceReport, error) {
	s.reports.RLock()
	defer s.reports.RUnlock()

	out := make([]*models.AttendanceReport, 0)
	for _, r := range s.reports.table {
		if r.SessionType == ref.Type && r.SessionID == ref.ID {
			out = append(out, copyReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *Storage) ListReportsForSessions(_ context.Context, t models.SessionType, sessionIDs []string) ([]*models.AttendanceReport, error) {
	s.reports.RLock()
	defer s.reports.RUnlock()

	ids := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		ids[id] = struct{}{}
	}

	out := make([]*models.AttendanceReport, 0)
	for _, r := range s.reports.table {
		if _, ok := ids[r.SessionID]; ok && r.SessionType == t {
			out = append(out, copyReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

func (s *Storage) ResetCalculated(_ context.Context, ref models.SessionRef) error {
	s.reports.Lock()
	defer s.reports.Unlock()

	for _, r := range s.reports.table {
		if r.SessionType == ref.Type && r.SessionID == ref.ID {
			r.IsCalculated = false
		}
	}
	return nil
}

// #### lookups ####

func (s *Storage) PutRoster(r models.Roster) {
	s.sessions.Lock()
	defer s.sessions.Unlock()

	r.StudentIDs = append([]string(nil), r.StudentIDs...)
	s.sessions.table[r.Ref().String()] = &r
}

// SetSessionStatus is used to mark a session completed in tests and local runs.
func (s *Storage) SetSessionStatus(ref models.SessionRef, status models.SessionStatus) {
	s.sessions.Lock()
	defer s.sessions.Unlock()

	if r, ok := s.sessions.table[ref.String()]; ok {
		r.Status = status
	}
}

func (s *Storage) Roster(_ context.Context, ref models.SessionRef) (*models.Roster, error) {
	s.sessions.RLock()
	defer s.sessions.RUnlock()

	r, ok := s.sessions.table[ref.String()]
	if !ok {
		return nil, response.ErrNotFound
	}
	c := *r
	c.StudentIDs = append([]string(nil), r.StudentIDs...)
	return &c, nil
}

func (s *Storage) CompletedSessions(_ context.Context, since, until time.Time) ([]models.SessionRef, error) {
	s.sessions.RLock()
	defer s.sessions.RUnlock()

	out := make([]models.SessionRef, 0)
	for _, r := range s.sessions.table {
		if r.Status != models.SessionCompleted {
			continue
		}
		if r.ScheduledStart.Before(since) || r.ScheduledStart.After(until) {
			continue
		}
		out = append(out, r.Ref())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *Storage) PutAcademySettings(a models.AcademySettings) {
	s.academy.Lock()
	defer s.academy.Unlock()

	s.academy.table[a.AcademyID] = &a
}

func (s *Storage) AcademySettings(_ context.Context, academyID string) (*models.AcademySettings, error) {
	s.academy.RLock()
	defer s.academy.RUnlock()

	a, ok := s.academy.table[academyID]
	if !ok {
		return nil, response.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *Storage) PutCourse(courseID, academyID string, students []string) {
	s.courses.Lock()
	defer s.courses.Unlock()

	s.courses.academy[courseID] = academyID
	s.courses.students[courseID] = append([]string(nil), students...)
}

func (s *Storage) CourseAcademy(_ context.Context, courseID string) (string, error) {
	s.courses.RLock()
	defer s.courses.RUnlock()

	a, ok := s.courses.academy[courseID]
	if !ok {
		return "", response.ErrNotFound
	}
	return a, nil
}

func (s *Storage) CourseStudents(_ context.Context, courseID string) ([]string, error) {
	s.courses.RLock()
	defer s.courses.RUnlock()

	st, ok := s.courses.students[courseID]
	if !ok {
		return nil, response.ErrNotFound
	}
	return append([]string(nil), st...), nil
}

func (s *Storage) CourseSessions(_ context.Context, courseID string) ([]models.CourseSession, error) {
	s.sessions.RLock()
	defer s.sessions.RUnlock()

	out := make([]models.CourseSession, 0)
	for _, r := range s.sessions.table {
		if r.SessionType != models.SessionInteractive || r.CourseID != courseID {
			continue
		}
		out = append(out, models.CourseSession{
			SessionID:      r.SessionID,
			ScheduledStart: r.ScheduledStart,
			Status:         r.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out, nil
}

func copyPresence(p *models.PresenceRecord) *models.PresenceRecord {
	c := *p
	c.FirstJoinTime = copyTime(p.FirstJoinTime)
	c.LastLeaveTime = copyTime(p.LastLeaveTime)
	c.Cycles = make([]models.Cycle, len(p.Cycles))
	for i, cy := range p.Cycles {
		c.Cycles[i] = models.Cycle{JoinedAt: cy.JoinedAt, LeftAt: copyTime(cy.LeftAt)}
	}
	return &c
}

func copyReport(r *models.AttendanceReport) *models.AttendanceReport {
	c := *r
	c.MeetingEnterTime = copyTime(r.MeetingEnterTime)
	c.MeetingLeaveTime = copyTime(r.MeetingLeaveTime)
	if r.PerformanceMetric != nil {
		v := *r.PerformanceMetric
		c.PerformanceMetric = &v
	}
	if r.OverrideReason != nil {
		v := *r.OverrideReason
		c.OverrideReason = &v
	}
	if r.OverriddenBy != nil {
		v := *r.OverriddenBy
		c.OverriddenBy = &v
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
