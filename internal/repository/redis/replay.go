package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "totp:used:"

// CodeReplayStore implements repository.CodeReplayStore using Redis.
type CodeReplayStore struct {
	client *redis.Client
}

// NewCodeReplayStore creates a new Redis-backed TOTP replay store.
func NewCodeReplayStore(client *redis.Client) *CodeReplayStore {
	return &CodeReplayStore{client: client}
}

// MarkUsed claims the time step for the user. It returns false when the step
// was already claimed within ttl.
func (s *CodeReplayStore) MarkUsed(ctx context.Context, userID string, step int64, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, replayKey(userID, step), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis mark totp step: %w", err)
	}
	return ok, nil
}

func replayKey(userID string, step int64) string {
	return replayKeyPrefix + userID + ":" + strconv.FormatInt(step, 10)
}
