// Package policy turns a presence timeline into an attendance classification.
//
// Classification is identical for every session type. Session types differ
// only in where the grace period and attendance threshold come from, which
// is expressed by a ThresholdResolver on the type's Kind.
package policy

import (
	"math"
	"time"

	"attendance-service/internal/models"
)

const (
	DefaultGraceMinutes     = 15
	DefaultThresholdPercent = 80.0
	DefaultPostSessionGrace = 30 * time.Minute
)

type Thresholds struct {
	GraceMinutes     int
	ThresholdPercent float64
}

var DefaultThresholds = Thresholds{
	GraceMinutes:     DefaultGraceMinutes,
	ThresholdPercent: DefaultThresholdPercent,
}

type Result struct {
	Status        models.AttendanceStatus
	Percentage    float64
	ActualMinutes int
	IsLate        bool
	LateMinutes   int
}

type Policy struct {
	// PostSessionGrace is the overtime after the scheduled end during which
	// an open cycle keeps counting toward live duration.
	PostSessionGrace time.Duration
}

func New(postSessionGrace time.Duration) Policy {
	if postSessionGrace < 0 {
		postSessionGrace = 0
	}
	return Policy{PostSessionGrace: postSessionGrace}
}

// Classify is a pure function of its arguments. asOf is only consulted for an
// open cycle, so a record that is not currently present classifies the same
// at any time.
func (p Policy) Classify(rec *models.PresenceRecord, sctx models.SessionContext, asOf time.Time) Result {
	actual := p.ActualMinutes(rec, sctx, asOf)

	// no expected duration to measure against, keep the minutes only
	if sctx.ExpectedDurationMinutes <= 0 {
		return Result{Status: models.AttendanceAbsent, ActualMinutes: actual}
	}

	percentage := round2(float64(actual) / float64(sctx.ExpectedDurationMinutes) * 100)

	res := Result{
		Percentage:    percentage,
		ActualMinutes: actual,
	}

	if rec != nil && rec.FirstJoinTime != nil && !sctx.ScheduledStart.IsZero() {
		late := int(rec.FirstJoinTime.Sub(sctx.ScheduledStart) / time.Minute)
		if late > sctx.GracePeriodMinutes {
			res.IsLate = true
			res.LateMinutes = late
		}
	}

	switch {
	case percentage >= sctx.AttendanceThresholdPercent:
		if res.IsLate {
			res.Status = models.AttendanceLate
		} else {
			res.Status = models.AttendancePresent
		}
	case percentage > 0:
		res.Status = models.AttendancePartial
	default:
		res.Status = models.AttendanceAbsent
	}

	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
