package repository

import (
	"context"
	"fmt"

	"spotbook/pkg/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "spotbook:lock:spot:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisSpotLocker struct {
	client  *redis.Client
	lockCfg LockConfig
}

func NewRedisSpotLocker(cfg *config.Config) SpotLocker {
	return NewRedisSpotLockerWithClient(cfg.Client.Redis, lockConfigFrom(cfg))
}

func NewRedisSpotLockerWithClient(client *redis.Client, lockCfg LockConfig) SpotLocker {
	return &redisSpotLocker{client: client, lockCfg: lockCfg}
}

func (l *redisSpotLocker) Acquire(ctx context.Context, spotID string) (string, error) {
	token := uuid.NewString()
	key := redisLockPrefix + spotID

	err := waitForLock(ctx, l.lockCfg, spotID, func(ctx context.Context) (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, l.lockCfg.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("failed to set spot lock: %w", err)
		}
		return ok, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (l *redisSpotLocker) Release(ctx context.Context, spotID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{redisLockPrefix + spotID}, token).Err(); err != nil {
		return fmt.Errorf("failed to release spot lock: %w", err)
	}
	return nil
}
