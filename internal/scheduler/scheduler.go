// Package scheduler finalizes completed sessions on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"attendance-service/internal/service"
	"attendance-service/pkg/sl"
)

type Finalizer interface {
	FinalizeCompleted(ctx context.Context, since, until time.Time) ([]*service.BatchResult, error)
}

type Scheduler struct {
	log       *slog.Logger
	cron      *cron.Cron
	finalizer Finalizer
	lookback  time.Duration
	delay     time.Duration
	now       func() time.Time
}

// New schedules a finalize pass over sessions that started between
// lookback and delay ago. The delay leaves late leave events time to
// arrive before a session is finalized.
func New(log *slog.Logger, finalizer Finalizer, spec string, lookback, delay time.Duration) (*Scheduler, error) {
	const op = "scheduler.New"

	log = log.With(slog.String("component", "scheduler"))
	logger := cronLogger{log: log}

	s := &Scheduler{
		log:       log,
		cron:      cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		finalizer: finalizer,
		lookback:  lookback,
		delay:     delay,
		now:       time.Now,
	}

	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		return nil, fmt.Errorf("%s: %q: %w", op, spec, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running pass to finish or ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes one finalize pass.
func (s *Scheduler) Run() {
	now := s.now()
	since, until := now.Add(-s.lookback), now.Add(-s.delay)

	results, err := s.finalizer.FinalizeCompleted(context.Background(), since, until)
	if err != nil {
		s.log.Error("finalize pass had failures", sl.Err(err))
	}

	failed := 0
	for _, r := range results {
		failed += r.Failed
	}

	s.log.Info("finalize pass done",
		slog.Int("sessions", len(results)),
		slog.Int("failed_records", failed),
		slog.Time("since", since),
		slog.Time("until", until),
	)
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, sl.Err(err))...)
}
