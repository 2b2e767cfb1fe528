package loader

import (
	"context"
	"sync"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

// MemoryCache is an in-process Cache used when Redis is not configured.
type MemoryCache struct {
	mu    sync.RWMutex
	snaps map[string]domain.Snapshot
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{snaps: make(map[string]domain.Snapshot)}
}

func (c *MemoryCache) Get(_ context.Context, userID string) (*domain.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snaps[userID]
	if !ok {
		return nil, &domain.SnapshotNotFoundError{UserID: userID}
	}
	return &snap, nil
}

func (c *MemoryCache) Put(_ context.Context, snap *domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.UserID] = *snap
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, userID)
	return nil
}
