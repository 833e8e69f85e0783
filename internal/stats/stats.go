// Package stats rolls attendance reports up into session and course summaries.
// Every function here works on snapshots and has no side effects.
package stats

import (
	"math"
	"sort"
	"time"

	"attendance-service/internal/models"
)

// MinTrendSessions is the number of completed sessions below which a
// performance trend is not meaningful.
const MinTrendSessions = 4

type SessionStats struct {
	Total          int     `json:"total"`
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Partial        int     `json:"partial"`
	Absent         int     `json:"absent"`
	Unevaluated    int     `json:"unevaluated"`
	AvgPercentage  float64 `json:"average_attendance_percentage"`
	AvgPerformance float64 `json:"average_performance"`
	Evaluated      int     `json:"evaluated"`
}

func Session(reports []*models.AttendanceReport) SessionStats {
	var (
		s       SessionStats
		pctSum  float64
		perfSum float64
	)

	for _, r := range reports {
		s.Total++
		pctSum += r.AttendancePercentage

		switch r.Status {
		case models.AttendancePresent:
			s.Present++
		case models.AttendanceLate:
			s.Late++
		case models.AttendancePartial:
			s.Partial++
		case models.AttendanceAbsent:
			s.Absent++
		default:
			s.Unevaluated++
		}

		if r.PerformanceMetric != nil {
			s.Evaluated++
			perfSum += *r.PerformanceMetric
		}
	}

	if s.Total > 0 {
		s.AvgPercentage = round(pctSum/float64(s.Total), 2)
	}
	if s.Evaluated > 0 {
		s.AvgPerformance = round(perfSum/float64(s.Evaluated), 2)
	}

	return s
}

type CourseAttendance struct {
	Rate          float64 `json:"rate"`
	Attended      int     `json:"attended"`
	Late          int     `json:"late"`
	Partial       int     `json:"partial"`
	Absent        int     `json:"absent"`
	TotalSessions int     `json:"total_sessions"`
	Seats         int     `json:"seats"`
}

// Course computes attendance over the completed sessions of a course.
//
// With a studentID the rate is that student's attended / completed sessions.
// Without one the rate is per seat: attended seats / (completed sessions x
// enrolled students), where a seat with no report counts as absent.
// Late counts as attended and is also reported on its own.
func Course(sessions []models.CourseSession, reports []*models.AttendanceReport, enrolled []string, studentID string) CourseAttendance {
	bySession := index(reports)
	completed := completedSessions(sessions)

	students := enrolled
	if studentID != "" {
		students = []string{studentID}
	}

	res := CourseAttendance{TotalSessions: len(completed)}
	for _, cs := range completed {
		for _, st := range students {
			res.Seats++

			r, ok := bySession[cs.SessionID][st]
			if !ok {
				res.Absent++
				continue
			}

			switch r.Status {
			case models.AttendancePresent:
				res.Attended++
			case models.AttendanceLate:
				res.Attended++
				res.Late++
			case models.AttendancePartial:
				res.Partial++
			default:
				res.Absent++
			}
		}
	}

	if res.Seats > 0 {
		res.Rate = round(float64(res.Attended)/float64(res.Seats)*100, 1)
	}

	return res
}

type PerformanceTrend struct {
	Sessions      int                  `json:"sessions"`
	FirstHalfAvg  float64              `json:"first_half_average"`
	SecondHalfAvg float64              `json:"second_half_average"`
	Improvement   float64              `json:"improvement"`
	Points        []SessionPerformance `json:"points"`
}

// SessionPerformance is the average metric of one completed session.
type SessionPerformance struct {
	SessionID      string    `json:"session_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	Average        float64   `json:"average"`
	Evaluated      int       `json:"evaluated"`
}

// Trend compares average performance between the chronological first and
// second half of a course's completed sessions. Points lists every completed
// session that has at least one metric, in scheduled order.
func Trend(sessions []models.CourseSession, reports []*models.AttendanceReport, studentID string) PerformanceTrend {
	completed := completedSessions(sessions)
	bySession := index(reports)

	res := PerformanceTrend{
		Sessions: len(completed),
		Points:   make([]SessionPerformance, 0, len(completed)),
	}
	for _, cs := range completed {
		sum, n := sumPerformance(bySession[cs.SessionID], studentID)
		if n == 0 {
			continue
		}
		res.Points = append(res.Points, SessionPerformance{
			SessionID:      cs.SessionID,
			ScheduledStart: cs.ScheduledStart,
			Average:        round(sum/float64(n), 2),
			Evaluated:      n,
		})
	}

	if len(completed) < MinTrendSessions {
		return res
	}

	half := len(completed) / 2

	first, okFirst := averagePerformance(completed[:half], bySession, studentID)
	second, okSecond := averagePerformance(completed[half:], bySession, studentID)
	res.FirstHalfAvg = first
	res.SecondHalfAvg = second

	if okFirst && okSecond {
		res.Improvement = round(second-first, 2)
	}

	return res
}

func averagePerformance(sessions []models.CourseSession, bySession map[string]map[string]*models.AttendanceReport, studentID string) (float64, bool) {
	var (
		sum float64
		n   int
	)

	for _, cs := range sessions {
		s, c := sumPerformance(bySession[cs.SessionID], studentID)
		sum += s
		n += c
	}

	if n == 0 {
		return 0, false
	}
	return round(sum/float64(n), 2), true
}

func sumPerformance(byStudent map[string]*models.AttendanceReport, studentID string) (float64, int) {
	var (
		sum float64
		n   int
	)

	for st, r := range byStudent {
		if studentID != "" && st != studentID {
			continue
		}
		if r.PerformanceMetric == nil {
			continue
		}
		sum += *r.PerformanceMetric
		n++
	}

	return sum, n
}

func completedSessions(sessions []models.CourseSession) []models.CourseSession {
	out := make([]models.CourseSession, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == models.SessionCompleted {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledStart.Before(out[j].ScheduledStart)
	})

	return out
}

func index(reports []*models.AttendanceReport) map[string]map[string]*models.AttendanceReport {
	out := make(map[string]map[string]*models.AttendanceReport)
	for _, r := range reports {
		m, ok := out[r.SessionID]
		if !ok {
			m = make(map[string]*models.AttendanceReport)
			out[r.SessionID] = m
		}
		m[r.StudentID] = r
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
