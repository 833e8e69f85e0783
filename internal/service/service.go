// Package service is the reconciliation engine. It turns join and leave
// events into presence records, classifies them through the session type's
// policy and keeps one attendance report per (session, student).
package service

import (
	"context"
	"log/slog"
	"time"

	"attendance-service/internal/lock"
	"attendance-service/internal/models"
	"attendance-service/internal/notify"
	"attendance-service/internal/policy"
)

type PresenceStore interface {
	GetPresence(ctx context.Context, ref models.SessionRef, userID string) (*models.PresenceRecord, error)
	SavePresence(ctx context.Context, p *models.PresenceRecord) error
	ListPresence(ctx context.Context, ref models.SessionRef) ([]*models.PresenceRecord, error)
}

type ReportStore interface {
	GetReport(ctx context.Context, ref models.SessionRef, studentID string) (*models.AttendanceReport, error)
	SaveReport(ctx context.Context, r *models.AttendanceReport) error
	ListReports(ctx context.Context, ref models.SessionRef) ([]*models.AttendanceReport, error)
	ListReportsForSessions(ctx context.Context, t models.SessionType, sessionIDs []string) ([]*models.AttendanceReport, error)
	ResetCalculated(ctx context.Context, ref models.SessionRef) error
}

type RosterLookup interface {
	Roster(ctx context.Context, ref models.SessionRef) (*models.Roster, error)
	CompletedSessions(ctx context.Context, since, until time.Time) ([]models.SessionRef, error)
}

type CourseLookup interface {
	CourseSessions(ctx context.Context, courseID string) ([]models.CourseSession, error)
	CourseStudents(ctx context.Context, courseID string) ([]string, error)
}

type Notifier interface {
	AttendanceMarked(ctx context.Context, ev notify.Event)
}

type Deps struct {
	Presence PresenceStore
	Reports  ReportStore
	Rosters  RosterLookup
	Courses  CourseLookup
	Locker   lock.Locker
	Registry policy.Registry
	Policy   policy.Policy
	Notifier Notifier
}

type Options struct {
	LockTTL   time.Duration
	LockRetry time.Duration
	// Workers bounds how many records FinalizeSession reconciles at once.
	Workers int
	// ReconnectWindow is how soon after a leave a join is treated as the
	// same stay.
	ReconnectWindow time.Duration
	// EventTTL is how long processed event ids are remembered.
	EventTTL time.Duration
}

type Service struct {
	log      *slog.Logger
	presence PresenceStore
	reports  ReportStore
	rosters  RosterLookup
	courses  CourseLookup
	locker   lock.Locker
	registry policy.Registry
	policy   policy.Policy
	notifier Notifier
	opts     Options
	now      func() time.Time
}

func New(log *slog.Logger, deps Deps, opts Options) *Service {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.EventTTL <= 0 {
		opts.EventTTL = 24 * time.Hour
	}

	return &Service{
		log:      log.With(slog.String("component", "service")),
		presence: deps.Presence,
		reports:  deps.Reports,
		rosters:  deps.Rosters,
		courses:  deps.Courses,
		locker:   deps.Locker,
		registry: deps.Registry,
		policy:   deps.Policy,
		notifier: deps.Notifier,
		opts:     opts,
		now:      time.Now,
	}
}

func presenceLockKey(ref models.SessionRef, userID string) string {
	return "presence:" + ref.String() + ":" + userID
}

func eventKey(id string) string {
	return "event:" + id
}

// acquire serializes every read-modify-write on one (session, user) pair.
func (s *Service) acquire(ctx context.Context, ref models.SessionRef, userID string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.LockTTL)
	release, err := lock.Acquire(ctx, s.locker, presenceLockKey(ref, userID), s.opts.LockTTL, s.opts.LockRetry)
	cancel()
	return release, err
}
