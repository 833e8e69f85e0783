// Package notify delivers attendanceMarked events to downstream consumers.
// Delivery is fire-and-forget: a slow or failing sink never blocks or fails
// the reconciliation write that produced the event.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"attendance-service/internal/models"
	"attendance-service/pkg/sl"
)

type Event struct {
	ID          string                  `json:"id"`
	SessionType models.SessionType      `json:"session_type"`
	SessionID   string                  `json:"session_id"`
	StudentID   string                  `json:"student_id"`
	Status      models.AttendanceStatus `json:"status"`
	Percentage  float64                 `json:"attendance_percentage"`
	Manual      bool                    `json:"manual"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

type Dispatcher struct {
	log     *slog.Logger
	sinks   []Sink
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewDispatcher(log *slog.Logger, size int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &Dispatcher{
		log:     log.With(slog.String("component", "notify")),
		sinks:   sinks,
		timeout: timeout,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go d.run()

	return d
}

// AttendanceMarked queues ev for delivery. When the queue is full the event
// is dropped and logged.
func (d *Dispatcher) AttendanceMarked(_ context.Context, ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("dispatcher closed, dropping event", slog.String("event_id", ev.ID))
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.log.Warn("notification queue full, dropping event",
			slog.String("event_id", ev.ID),
			slog.String("session_id", ev.SessionID),
			slog.String("student_id", ev.StudentID),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, ev)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			d.log.Error("notification sink panicked", slog.Any("panic", p), slog.String("event_id", ev.ID))
		}
	}()

	if err := s.Publish(ctx, ev); err != nil {
		d.log.Error("failed to publish notification", slog.String("event_id", ev.ID), sl.Err(err))
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.done
	return nil
}
