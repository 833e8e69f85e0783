package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendance-service/pkg/response"
)

// Acquire blocks until key is locked or ctx is done. The returned release
// func must be called exactly once; it uses a fresh context so a cancelled
// request still frees the lock.
func Acquire(ctx context.Context, l Locker, key string, ttl, retry time.Duration) (func(), error) {
	const op = "lock.Acquire"

	if retry <= 0 {
		retry = 50 * time.Millisecond
	}

	for {
		token, ok, err := l.Lock(ctx, key, ttl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return func() {
				unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = l.Unlock(unlockCtx, key, token)
			}, nil
		}

		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%s: %s: %w", op, key, response.ErrLocked)
			}
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-t.C:
		}
	}
}
