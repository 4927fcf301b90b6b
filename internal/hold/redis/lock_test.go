package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-booking/internal/logger"
	"bus-booking/internal/models"
)

func setupLock(t *testing.T) (*SessionLock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewSessionLock(client, logger.NewLogger()), mr
}

var lockRoute = models.RouteKey{From: "Chișinău", To: "Iași", Date: "2025-07-01"}

func TestAcquireAndConflict(t *testing.T) {
	lock, _ := setupLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "user1", lockRoute, "owner-a", 900*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "user1", lockRoute, "owner-b", 900*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different session is unaffected.
	ok, err = lock.Acquire(ctx, "user2", lockRoute, "owner-c", 900*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseFreesSlotForOwner(t *testing.T) {
	lock, _ := setupLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "user1", lockRoute, "owner-a", 900*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "user1", lockRoute, "owner-a"))

	ok, err = lock.Acquire(ctx, "user1", lockRoute, "owner-b", 900*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseIgnoresForeignOwner(t *testing.T) {
	lock, _ := setupLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "user1", lockRoute, "owner-a", 900*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale owner must not free someone else's slot.
	require.NoError(t, lock.Release(ctx, "user1", lockRoute, "owner-stale"))

	ok, err = lock.Acquire(ctx, "user1", lockRoute, "owner-b", 900*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseAfterExpiryIsNoop(t *testing.T) {
	lock, mr := setupLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "user1", lockRoute, "owner-a", 900*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(901 * time.Second)

	require.NoError(t, lock.Release(ctx, "user1", lockRoute, "owner-a"))

	ok, err = lock.Acquire(ctx, "user1", lockRoute, "owner-b", 900*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
