package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"attendance-service/internal/models"
	"attendance-service/internal/notify"
	"attendance-service/pkg/response"
)

type RecordError struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BatchResult summarizes one finalize pass. Failed records are listed in
// Errors and never prevent the rest of the batch from being written.
type BatchResult struct {
	Session   models.SessionRef `json:"-"`
	Processed int               `json:"processed"`
	Updated   int               `json:"updated"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Errors    []RecordError     `json:"errors,omitempty"`
}

// FinalizeSession reclassifies every participant and enrolled student of
// the session. Records are reconciled concurrently and independently.
// Cycles still open after the post-session grace are closed at the
// scheduled end. Manually evaluated reports are skipped.
func (s *Service) FinalizeSession(ctx context.Context, ref models.SessionRef) (*BatchResult, error) {
	const op = "service.FinalizeSession"

	log := s.log.With(slog.String("op", op), slog.String("session", ref.String()))

	kind, err := s.registry.Kind(ref.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	roster, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	records, err := s.presence.ListPresence(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: list presence: %w", op, err)
	}

	sctx := kind.Context(ctx, roster)
	now := s.now()

	res := &BatchResult{Session: ref}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)

	for _, userID := range participants(roster, records) {
		g.Go(func() error {
			updated, err := s.finalizeRecord(ctx, roster, sctx, userID, now)

			mu.Lock()
			defer mu.Unlock()

			res.Processed++
			switch {
			case err != nil:
				res.Failed++
				res.Errors = append(res.Errors, RecordError{UserID: userID, Error: err.Error()})
			case updated:
				res.Updated++
			default:
				res.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].UserID < res.Errors[j].UserID })

	log.Info("session finalized",
		slog.Int("processed", res.Processed),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)

	return res, nil
}

// FinalizeCompleted finalizes every completed session scheduled between
// since and until that still has reports awaiting calculation. A failing
// session is reported in the joined error and does not stop the others.
func (s *Service) FinalizeCompleted(ctx context.Context, since, until time.Time) ([]*BatchResult, error) {
	const op = "service.FinalizeCompleted"

	refs, err := s.rosters.CompletedSessions(ctx, since, until)
	if err != nil {
		return nil, fmt.Errorf("%s: list sessions: %w", op, err)
	}

	var (
		results []*BatchResult
		errs    []error
	)
	for _, ref := range refs {
		done, err := s.finalized(ctx, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", op, ref, err))
			continue
		}
		if done {
			continue
		}

		res, err := s.FinalizeSession(ctx, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", op, ref, err))
			continue
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

// RecalculateSession clears the calculated flag on every report of the
// session and finalizes it again.
func (s *Service) RecalculateSession(ctx context.Context, ref models.SessionRef) (*BatchResult, error) {
	const op = "service.RecalculateSession"

	if _, err := s.registry.Kind(ref.Type); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.reports.ResetCalculated(ctx, ref); err != nil {
		return nil, fmt.Errorf("%s: reset: %w", op, err)
	}

	res, err := s.FinalizeSession(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Service) finalizeRecord(ctx context.Context, roster *models.Roster, sctx models.SessionContext, userID string, now time.Time) (bool, error) {
	release, err := s.acquire(ctx, roster.Ref(), userID)
	if err != nil {
		return false, err
	}
	defer release()

	rec, err := s.presence.GetPresence(ctx, roster.Ref(), userID)
	switch {
	case errors.Is(err, response.ErrNotFound):
		rec = nil
	case err != nil:
		return false, fmt.Errorf("get presence: %w", err)
	default:
		if err := validatePresence(rec); err != nil {
			return false, err
		}
		if rec.IsCurrentlyPresent && s.policy.Stale(sctx, now) {
			closeCycle(rec, roster.ScheduledEnd(), roster.ScheduledStart)
			if err := s.presence.SavePresence(ctx, rec); err != nil {
				return false, fmt.Errorf("close stale cycle: %w", err)
			}
		}
	}

	if !roster.IsStudent(userID) {
		return false, nil
	}

	return s.reconcile(ctx, roster, sctx, userID, rec, true)
}

// reconcile classifies rec and persists the student's report unless it was
// manually evaluated. The caller holds the (session, user) lock. It reports
// whether the report was written.
func (s *Service) reconcile(ctx context.Context, roster *models.Roster, sctx models.SessionContext, studentID string, rec *models.PresenceRecord, finalize bool) (bool, error) {
	report, err := s.reportFor(ctx, roster, studentID)
	if err != nil {
		return false, err
	}
	if report.ManuallyEvaluated {
		s.log.Debug("manually evaluated report skipped",
			slog.String("session", roster.Ref().String()),
			slog.String("student_id", studentID),
		)
		return false, nil
	}

	res := s.policy.Classify(rec, sctx, s.now())
	prev := report.Status

	report.Status = res.Status
	report.AttendancePercentage = res.Percentage
	report.ActualAttendanceMinutes = res.ActualMinutes
	report.IsLate = res.IsLate
	report.LateMinutes = res.LateMinutes
	if rec != nil {
		report.MeetingEnterTime = rec.FirstJoinTime
		report.MeetingLeaveTime = rec.LastLeaveTime
	}
	if finalize {
		report.IsCalculated = true
	}

	if err := s.reports.SaveReport(ctx, report); err != nil {
		return false, fmt.Errorf("save report: %w", err)
	}

	if prev != report.Status {
		s.marked(ctx, report)
	}

	return true, nil
}

// ensureReport creates the unevaluated report for an enrolled student.
func (s *Service) ensureReport(ctx context.Context, roster *models.Roster, studentID string) (*models.AttendanceReport, error) {
	report, err := s.reportFor(ctx, roster, studentID)
	if err != nil {
		return nil, err
	}
	if report.ID != "" {
		return report, nil
	}
	if err := s.reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	return report, nil
}

// reportFor returns the stored report or a new unsaved unevaluated one.
func (s *Service) reportFor(ctx context.Context, roster *models.Roster, studentID string) (*models.AttendanceReport, error) {
	report, err := s.reports.GetReport(ctx, roster.Ref(), studentID)
	if errors.Is(err, response.ErrNotFound) {
		return &models.AttendanceReport{
			SessionType: roster.SessionType,
			SessionID:   roster.SessionID,
			StudentID:   studentID,
			TeacherID:   roster.TeacherID,
			AcademyID:   roster.AcademyID,
			Status:      models.AttendanceUnevaluated,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// finalized reports whether every report of the session is calculated or
// manually evaluated.
func (s *Service) finalized(ctx context.Context, ref models.SessionRef) (bool, error) {
	reports, err := s.reports.ListReports(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("list reports: %w", err)
	}
	if len(reports) == 0 {
		return false, nil
	}
	for _, r := range reports {
		if !r.IsCalculated && !r.ManuallyEvaluated {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) marked(ctx context.Context, report *models.AttendanceReport) {
	if s.notifier == nil {
		return
	}
	s.notifier.AttendanceMarked(ctx, notify.Event{
		ID:          uuid.NewString(),
		SessionType: report.SessionType,
		SessionID:   report.SessionID,
		StudentID:   report.StudentID,
		Status:      report.Status,
		Percentage:  report.AttendancePercentage,
		Manual:      report.ManuallyEvaluated,
		OccurredAt:  s.now(),
	})
}

func validatePresence(rec *models.PresenceRecord) error {
	switch {
	case rec.UserID == "":
		return fmt.Errorf("%w: empty user id", response.ErrMalformedRecord)
	case rec.CumulativeDurationMinutes < 0:
		return fmt.Errorf("%w: negative duration", response.ErrMalformedRecord)
	case rec.IsCurrentlyPresent && rec.OpenCycle() == nil:
		return fmt.Errorf("%w: present without open cycle", response.ErrMalformedRecord)
	}
	return nil
}

// participants is every user with presence plus every enrolled student.
func participants(roster *models.Roster, records []*models.PresenceRecord) []string {
	n := len(records) + len(roster.StudentIDs)
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)

	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, r := range records {
		add(r.UserID)
	}
	for _, id := range roster.StudentIDs {
		add(id)
	}

	sort.Strings(out)
	return out
}
