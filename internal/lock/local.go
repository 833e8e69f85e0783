package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local is an in-process Locker with the same SETNX-with-TTL semantics as
// RedisLock. It is used when no Redis address is configured and in tests.
type Local struct {
	mu    sync.Mutex
	held  map[string]hold
	clock func() time.Time
}

type hold struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]hold), clock: time.Now}
}

func (l *Local) Lock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.held[key] = hold{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *Local) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
	return nil
}

func (l *Local) Close() error {
	return nil
}
