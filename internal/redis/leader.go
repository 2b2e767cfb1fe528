package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// renewScript extends the lock only if this instance still owns it.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// releaseScript deletes the lock only if this instance still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// LeaderLock is a TTL-based Redis lock for electing one active instance.
type LeaderLock struct {
	client     *redis.Client
	key        string
	instanceID string
	ttl        time.Duration
}

// NewLeaderLock creates a lock on key owned by instanceID.
func NewLeaderLock(client *redis.Client, key, instanceID string, ttl time.Duration) *LeaderLock {
	return &LeaderLock{client: client, key: key, instanceID: instanceID, ttl: ttl}
}

// AcquireOrRenew tries SETNX and, if the key already exists, renews it when
// owned by this instance. It returns true while this instance is the leader.
func (l *LeaderLock) AcquireOrRenew(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader SetNX %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}

	result, err := renewScript.Run(ctx, l.client, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("leader renew %s: %w", l.key, err)
	}
	return result == 1, nil
}

// Release gives up leadership if held.
func (l *LeaderLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("leader release %s: %w", l.key, err)
	}
	return nil
}
