package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"bus-booking/internal/logger"
	"bus-booking/internal/models"
)

// SessionLock enforces the client-side invariant that one session holds at
// most one active reservation per route at a time. The backend stays the
// source of truth for seat exclusivity across sessions; this lock only
// guards against concurrent re-submissions from the same session.
type SessionLock struct {
	Client *redis.Client
	Log    *logger.Logger
}

func NewSessionLock(client *redis.Client, log *logger.Logger) *SessionLock {
	return &SessionLock{Client: client, Log: log}
}

func lockKey(userID string, route models.RouteKey) string {
	return fmt.Sprintf("hold_session:%s:%s", userID, route.String())
}

// Acquire claims the (session, route) slot for owner with the hold's TTL.
// Returns false when another hold already occupies the slot.
func (l *SessionLock) Acquire(ctx context.Context, userID string, route models.RouteKey, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.Client.SetNX(ctx, lockKey(userID, route), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock error: %w", err)
	}
	return ok, nil
}

// Release frees the slot if owner still holds it. An already-expired key is
// not an error; the slot lapses naturally with the hold TTL.
func (l *SessionLock) Release(ctx context.Context, userID string, route models.RouteKey, owner string) error {
	key := lockKey(userID, route)
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
