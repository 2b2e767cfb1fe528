package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

// DefaultSnapshotTTL bounds how long a user's last good inputs are served.
const DefaultSnapshotTTL = 24 * time.Hour

func snapshotKey(userID string) string { return "analytics:snapshot:" + userID }

// SnapshotStore keeps the last good analytics snapshot per user.
type SnapshotStore interface {
	Get(ctx context.Context, userID string) (*domain.Snapshot, error)
	Put(ctx context.Context, snap *domain.Snapshot) error
	Delete(ctx context.Context, userID string) error
}

type snapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore creates a Redis-backed SnapshotStore. ttl <= 0 uses
// DefaultSnapshotTTL.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &snapshotStore{client: client, ttl: ttl}
}

func (s *snapshotStore) Get(ctx context.Context, userID string) (*domain.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.SnapshotNotFoundError{UserID: userID}
		}
		return nil, fmt.Errorf("redis get snapshot for %s: %w", userID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for %s: %w", userID, err)
	}
	return &snap, nil
}

func (s *snapshotStore) Put(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(snap.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot for %s: %w", snap.UserID, err)
	}
	return nil
}

func (s *snapshotStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, snapshotKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete snapshot for %s: %w", userID, err)
	}
	return nil
}
