package policy

import (
	"time"

	"attendance-service/internal/models"
)

// CycleMinutes is the whole number of minutes a closed interval counts for.
// Time before the scheduled start is not counted.
func CycleMinutes(joinedAt, leftAt, scheduledStart time.Time) int {
	from := joinedAt
	if !scheduledStart.IsZero() && from.Before(scheduledStart) {
		from = scheduledStart
	}
	if !leftAt.After(from) {
		return 0
	}
	return int(leftAt.Sub(from) / time.Minute)
}

// ClosedMinutes sums every closed cycle. Open cycles are ignored.
func ClosedMinutes(cycles []models.Cycle, scheduledStart time.Time) int {
	total := 0
	for _, c := range cycles {
		if c.LeftAt == nil {
			continue
		}
		total += CycleMinutes(c.JoinedAt, *c.LeftAt, scheduledStart)
	}
	return total
}

// ActualMinutes returns the finalized cumulative duration, plus the open
// cycle when the user is still present.
func (p Policy) ActualMinutes(rec *models.PresenceRecord, sctx models.SessionContext, asOf time.Time) int {
	if rec == nil {
		return 0
	}

	total := rec.CumulativeDurationMinutes
	if !rec.IsCurrentlyPresent {
		return total
	}

	open := rec.OpenCycle()
	if open == nil {
		return total
	}

	end, ok := p.OpenCycleEnd(sctx, asOf)
	if !ok {
		return total
	}

	return total + CycleMinutes(open.JoinedAt, end, sctx.ScheduledStart)
}

// OpenCycleEnd is where an open cycle stops counting at asOf: nowhere before
// the session starts, asOf while the session runs, and the scheduled end
// once the post-session grace has also passed.
func (p Policy) OpenCycleEnd(sctx models.SessionContext, asOf time.Time) (time.Time, bool) {
	if sctx.ScheduledStart.IsZero() {
		return asOf, true
	}
	if asOf.Before(sctx.ScheduledStart) {
		return time.Time{}, false
	}

	end := sctx.ScheduledStart.Add(time.Duration(sctx.ExpectedDurationMinutes) * time.Minute)
	if asOf.After(end.Add(p.PostSessionGrace)) {
		return end, true
	}
	return asOf, true
}

// Stale reports whether an open cycle should be auto-closed at asOf.
func (p Policy) Stale(sctx models.SessionContext, asOf time.Time) bool {
	if sctx.ScheduledStart.IsZero() {
		return false
	}
	end := sctx.ScheduledStart.Add(time.Duration(sctx.ExpectedDurationMinutes) * time.Minute)
	return asOf.After(end.Add(p.PostSessionGrace))
}
