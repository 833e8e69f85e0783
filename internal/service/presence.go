package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attendance-service/internal/models"
	"attendance-service/internal/policy"
	"attendance-service/pkg/response"
	"attendance-service/pkg/sl"
)

// PresenceEvent is one join or leave reported by the meeting integration.
type PresenceEvent struct {
	Session models.SessionRef
	UserID  string
	// At defaults to the current time.
	At time.Time
	// ID deduplicates redelivered events. Empty disables deduplication.
	ID string
}

// HandleJoin opens a presence cycle for the user. A join while the user is
// already present changes nothing. Enrolled students also get an
// unevaluated report if they have none yet.
func (s *Service) HandleJoin(ctx context.Context, ev PresenceEvent) (*models.PresenceRecord, error) {
	const op = "service.HandleJoin"

	log := s.log.With(
		slog.String("op", op),
		slog.String("session", ev.Session.String()),
		slog.String("user_id", ev.UserID),
	)

	roster, err := s.lookup(ctx, ev.Session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	at := s.eventTime(ev)

	release, err := s.acquire(ctx, ev.Session, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	forget, first, err := s.firstSeen(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := s.loadPresence(ctx, ev.Session, ev.UserID)
	if err != nil {
		forget()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !first {
		log.Info("duplicate join event ignored", slog.String("event_id", ev.ID))
		return rec, nil
	}

	if rec.IsCurrentlyPresent {
		log.Debug("user already present")
	} else {
		start := at
		if rec.LastLeaveTime != nil {
			last := *rec.LastLeaveTime
			// a rejoin inside the reconnect window continues from the drop,
			// and an out of order join never overlaps a closed cycle
			if !start.After(last) || start.Sub(last) <= s.opts.ReconnectWindow {
				start = last
			}
		}

		rec.Cycles = append(rec.Cycles, models.Cycle{JoinedAt: start})
		rec.JoinCount++
		rec.IsCurrentlyPresent = true
		if rec.FirstJoinTime == nil {
			rec.FirstJoinTime = &start
		}

		if err := s.presence.SavePresence(ctx, rec); err != nil {
			forget()
			return nil, fmt.Errorf("%s: save presence: %w", op, err)
		}
	}

	if !roster.IsStudent(ev.UserID) {
		log.Info("presence tracked without report", sl.Err(response.ErrNotEnrolled))
		return rec, nil
	}

	if _, err := s.ensureReport(ctx, roster, ev.UserID); err != nil {
		forget()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("join recorded", slog.Int("join_count", rec.JoinCount))

	return rec, nil
}

// HandleLeave closes the open cycle and reclassifies the student's report.
// A leave for a user with no presence record is a no-op, and a second leave
// adds no duration.
func (s *Service) HandleLeave(ctx context.Context, ev PresenceEvent) (*models.PresenceRecord, error) {
	const op = "service.HandleLeave"

	log := s.log.With(
		slog.String("op", op),
		slog.String("session", ev.Session.String()),
		slog.String("user_id", ev.UserID),
	)

	kind, err := s.registry.Kind(ev.Session.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	roster, err := s.lookup(ctx, ev.Session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	at := s.eventTime(ev)

	release, err := s.acquire(ctx, ev.Session, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	forget, first, err := s.firstSeen(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := s.presence.GetPresence(ctx, ev.Session, ev.UserID)
	if errors.Is(err, response.ErrNotFound) {
		log.Warn("leave for untracked presence ignored")
		return nil, nil
	}
	if err != nil {
		forget()
		return nil, fmt.Errorf("%s: get presence: %w", op, err)
	}

	if !first {
		log.Info("duplicate leave event ignored", slog.String("event_id", ev.ID))
		return rec, nil
	}

	if closeCycle(rec, at, roster.ScheduledStart) {
		rec.LeaveCount++
		if err := s.presence.SavePresence(ctx, rec); err != nil {
			forget()
			return nil, fmt.Errorf("%s: save presence: %w", op, err)
		}
	} else {
		log.Debug("leave without open cycle")
	}

	if !roster.IsStudent(ev.UserID) {
		return rec, nil
	}

	sctx := kind.Context(ctx, roster)
	if _, err := s.reconcile(ctx, roster, sctx, ev.UserID, rec, false); err != nil {
		forget()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("leave recorded", slog.Int("cumulative_minutes", rec.CumulativeDurationMinutes))

	return rec, nil
}

// closeCycle ends the open cycle at leftAt and adds its whole minutes to the
// cumulative duration. It reports false when no cycle was open.
func closeCycle(rec *models.PresenceRecord, leftAt, scheduledStart time.Time) bool {
	open := rec.OpenCycle()
	if open == nil {
		rec.IsCurrentlyPresent = false
		return false
	}

	if leftAt.Before(open.JoinedAt) {
		leftAt = open.JoinedAt
	}
	open.LeftAt = &leftAt

	rec.CumulativeDurationMinutes += policy.CycleMinutes(open.JoinedAt, leftAt, scheduledStart)
	rec.LastLeaveTime = &leftAt
	rec.IsCurrentlyPresent = false

	return true
}

func (s *Service) eventTime(ev PresenceEvent) time.Time {
	if ev.At.IsZero() {
		return s.now()
	}
	return ev.At
}

func (s *Service) lookup(ctx context.Context, ref models.SessionRef) (*models.Roster, error) {
	if !ref.Type.Valid() {
		return nil, response.ErrInvalidType
	}

	roster, err := s.rosters.Roster(ctx, ref)
	if errors.Is(err, response.ErrNotFound) {
		return nil, response.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", response.ErrRosterLookup, err)
	}
	return roster, nil
}

func (s *Service) loadPresence(ctx context.Context, ref models.SessionRef, userID string) (*models.PresenceRecord, error) {
	rec, err := s.presence.GetPresence(ctx, ref, userID)
	if errors.Is(err, response.ErrNotFound) {
		return &models.PresenceRecord{
			SessionType: ref.Type,
			SessionID:   ref.ID,
			UserID:      userID,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	return rec, nil
}

// firstSeen records an event id and reports whether it was new. The returned
// forget func drops the mark so a failed event can be redelivered.
func (s *Service) firstSeen(ctx context.Context, id string) (func(), bool, error) {
	if id == "" {
		return func() {}, true, nil
	}

	token, ok, err := s.locker.Lock(ctx, eventKey(id), s.opts.EventTTL)
	if err != nil {
		return nil, false, fmt.Errorf("mark event: %w", err)
	}
	if !ok {
		return func() {}, false, nil
	}

	return func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), eventKey(id), token); err != nil {
			s.log.Warn("failed to forget event", slog.String("event_id", id), sl.Err(err))
		}
	}, true, nil
}
