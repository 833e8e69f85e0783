package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	s.log.Info("attendance marked",
		slog.String("event_id", ev.ID),
		slog.String("session_type", string(ev.SessionType)),
		slog.String("session_id", ev.SessionID),
		slog.String("student_id", ev.StudentID),
		slog.String("status", string(ev.Status)),
		slog.Float64("percentage", ev.Percentage),
		slog.Bool("manual", ev.Manual),
	)
	return nil
}

// RedisSink publishes events as JSON on a pub/sub channel for the
// notification service.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	const op = "notify.RedisSink.Publish"

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
