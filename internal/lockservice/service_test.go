package lockservice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	lock, err := svc.Acquire(ctx, "file:a.go", time.Second, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "file:a.go", lock.Resource)
	assert.NotEmpty(t, lock.OwnerToken)

	locked, err := svc.IsLocked(ctx, "file:a.go")
	require.NoError(t, err)
	assert.True(t, locked)

	ok, err := svc.Release(ctx, lock)
	require.NoError(t, err)
	assert.True(t, ok)

	locked, err = svc.IsLocked(ctx, "file:a.go")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestAcquireTimesOutUnderContention(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	held, err := svc.Acquire(ctx, "file:a.go", time.Hour, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	defer svc.Release(ctx, held)

	_, err = svc.Acquire(ctx, "file:a.go", 20*time.Millisecond, time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *models.LockTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestReleaseFailsForWrongOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	lock, err := svc.Acquire(ctx, "file:a.go", time.Second, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	impostor := &models.Lock{Resource: lock.Resource, OwnerToken: "not-the-owner"}
	ok, err := svc.Release(ctx, impostor)
	require.NoError(t, err)
	assert.False(t, ok, "release must not succeed for a non-owning token")

	locked, err := svc.IsLocked(ctx, "file:a.go")
	require.NoError(t, err)
	assert.True(t, locked, "the real lock must still be held")
}

func TestExtendFailsForWrongOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	lock, err := svc.Acquire(ctx, "file:a.go", time.Second, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	impostor := &models.Lock{Resource: lock.Resource, OwnerToken: "not-the-owner"}
	ok, err := svc.Extend(ctx, impostor, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiredLockCanBeReacquiredByAnotherOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Acquire(ctx, "file:a.go", 10*time.Millisecond, time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	second, err := svc.Acquire(ctx, "file:a.go", time.Second, time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, first.OwnerToken, second.OwnerToken)

	ok, err := svc.Release(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok, "the expired owner's release must be surfaced as a miss, never silent success")
}

func TestAcquireMultipleAllOrNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	blocker, err := svc.Acquire(ctx, "file:b.go", time.Hour, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	defer svc.Release(ctx, blocker)

	locks, err := svc.AcquireMultiple(ctx, []string{"file:a.go", "file:b.go", "file:c.go"}, 20*time.Millisecond, time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	assert.Nil(t, locks)

	lockedA, err := svc.IsLocked(ctx, "file:a.go")
	require.NoError(t, err)
	assert.False(t, lockedA, "file:a.go must have been released after file:b.go failed")
}

func TestReleaseMultipleCountsOnlySuccesses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Acquire(ctx, "file:a.go", time.Second, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	b, err := svc.Acquire(ctx, "file:b.go", time.Second, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	impostor := &models.Lock{Resource: b.Resource, OwnerToken: "not-the-owner"}
	released := svc.ReleaseMultiple(ctx, []*models.Lock{a, impostor})
	assert.Equal(t, 1, released)
}

func TestWithLockReleasesOnError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.WithLock(ctx, "file:a.go", time.Second, time.Millisecond, 10*time.Millisecond, func(l *models.Lock) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	locked, err := svc.IsLocked(ctx, "file:a.go")
	require.NoError(t, err)
	assert.False(t, locked, "WithLock must release even when fn fails")
}

func TestConcurrentAcquireAtLeastOneWinner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	successes := make([]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := svc.Acquire(ctx, "contended", 30*time.Millisecond, time.Millisecond, 5*time.Millisecond)
			successes[idx] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 1, "at least one acquirer must win the contended lock")
}
