package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-service/pkg/response"
)

func TestLocal_LockExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.clock = func() time.Time { return now }

	_, ok, _ := l.Lock(ctx, "k", time.Minute)
	assert.True(t, ok)

	_, ok, _ = l.Lock(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.Lock(ctx, "k", time.Minute)
	assert.True(t, ok, "expired lock can be taken again")
}

func TestLocal_ExpiredHolderKeepsNextHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.clock = func() time.Time { return now }

	first, ok, _ := l.Lock(ctx, "k", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	second, ok, _ := l.Lock(ctx, "k", time.Minute)
	require.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "k", first))
	_, ok, _ = l.Lock(ctx, "k", time.Minute)
	assert.False(t, ok, "a stale token must not release the current holder")

	require.NoError(t, l.Unlock(ctx, "k", second))
	_, ok, _ = l.Lock(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestAcquire_Serializes(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := Acquire(ctx, l, "k", time.Minute, time.Millisecond)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestAcquire_TimesOut(t *testing.T) {
	l := NewLocal()
	_, ok, _ := l.Lock(context.Background(), "k", time.Minute)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Acquire(ctx, l, "k", time.Minute, 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, response.ErrLocked))
}
