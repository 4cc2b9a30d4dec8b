package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisBatchLocker struct {
	client *redis.Client
}

func NewRedisBatchLocker(client *redis.Client) *RedisBatchLocker {
	return &RedisBatchLocker{client: client}
}

func batchLockKey(batchWeek string) string {
	return fmt.Sprintf("payment_batch_lock:%s", batchWeek)
}

func (l *RedisBatchLocker) Lock(ctx context.Context, batchWeek string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, batchLockKey(batchWeek), "1", ttl).Result()
}

func (l *RedisBatchLocker) Unlock(ctx context.Context, batchWeek string) error {
	return l.client.Del(ctx, batchLockKey(batchWeek)).Err()
}
