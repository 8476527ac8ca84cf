package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupScheduler(t *testing.T) (*RedisScheduler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisScheduler(client), mr
}

func TestScheduleAt_DeliversWhenDue(t *testing.T) {
	s, _ := setupScheduler(t)
	ctx := context.Background()
	now := time.Now()

	err := s.ScheduleAt(ctx, Task{
		Name:    TaskPurchaseRetry,
		OrderID: "ORD-1",
		Handle:  PurchaseHandle("ORD-1"),
		RunAt:   now.Add(60 * time.Second),
	})
	require.NoError(t, err)

	// Not due yet.
	tasks, err := s.PopDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// Due after the delay.
	tasks, err = s.PopDue(ctx, now.Add(61*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskPurchaseRetry, tasks[0].Name)
	assert.Equal(t, "ORD-1", tasks[0].OrderID)
	assert.Equal(t, PurchaseHandle("ORD-1"), tasks[0].Handle)

	// Claimed tasks are gone.
	tasks, err = s.PopDue(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestScheduleAt_DuplicateHandleIsNoOp(t *testing.T) {
	s, _ := setupScheduler(t)
	ctx := context.Background()
	now := time.Now()

	first := Task{
		Name:    TaskPurchaseRetry,
		OrderID: "ORD-1",
		Handle:  PurchaseHandle("ORD-1"),
		RunAt:   now.Add(time.Minute),
	}
	require.NoError(t, s.ScheduleAt(ctx, first))

	// A competing enqueue for the same order must not create a second task
	// or move the due time.
	dup := first
	dup.RunAt = now.Add(time.Hour)
	require.NoError(t, s.ScheduleAt(ctx, dup))

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	tasks, err := s.PopDue(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestScheduleAt_DistinctRetryGenerations(t *testing.T) {
	s, _ := setupScheduler(t)
	ctx := context.Background()
	now := time.Now()

	for gen := 1; gen <= 3; gen++ {
		err := s.ScheduleAt(ctx, Task{
			Name:    TaskPurchaseRetry,
			OrderID: "ORD-7",
			Handle:  RetryHandle("ORD-7", gen),
			RunAt:   now.Add(time.Duration(gen) * time.Minute),
		})
		require.NoError(t, err)
	}

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestScheduleAt_EmptyHandle(t *testing.T) {
	s, _ := setupScheduler(t)
	err := s.ScheduleAt(context.Background(), Task{Name: TaskPurchaseRetry, OrderID: "ORD-1"})
	assert.Error(t, err)
}

func TestPopDue_RespectsLimit(t *testing.T) {
	s, _ := setupScheduler(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, s.ScheduleAt(ctx, Task{
			Name:    TaskPurchaseRetry,
			OrderID: id,
			Handle:  PurchaseHandle(id),
			RunAt:   now.Add(-time.Second),
		}))
	}

	tasks, err := s.PopDue(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = s.PopDue(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestIsAvailable(t *testing.T) {
	s, mr := setupScheduler(t)
	ctx := context.Background()

	assert.True(t, s.IsAvailable(ctx))

	mr.Close()
	assert.False(t, s.IsAvailable(ctx))
}
