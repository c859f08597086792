package service

import (
	"context"
	"sync"
	"time"
)

// ConsumedTokenCache remembers token hashes whose terminal state is already
// known, so replay storms answer from cache instead of the database. Entries
// are tombstones: once a hash is marked the token can never become live
// again, which makes a stale miss the only possible cache error.
type ConsumedTokenCache interface {
	Seen(ctx context.Context, tokenType, hash string) (bool, error)
	Mark(ctx context.Context, tokenType, hash string, ttl time.Duration) error
	InvalidateType(ctx context.Context, tokenType string) error
}

type NoopConsumedTokenCache struct{}

func NewNoopConsumedTokenCache() *NoopConsumedTokenCache {
	return &NoopConsumedTokenCache{}
}

func (c *NoopConsumedTokenCache) Seen(context.Context, string, string) (bool, error) {
	return false, nil
}

func (c *NoopConsumedTokenCache) Mark(context.Context, string, string, time.Duration) error {
	return nil
}

func (c *NoopConsumedTokenCache) InvalidateType(context.Context, string) error {
	return nil
}

type InMemoryConsumedTokenCache struct {
	mu    sync.RWMutex
	store map[string]map[string]time.Time
}

func NewInMemoryConsumedTokenCache() *InMemoryConsumedTokenCache {
	return &InMemoryConsumedTokenCache{
		store: make(map[string]map[string]time.Time),
	}
}

func (c *InMemoryConsumedTokenCache) Seen(_ context.Context, tokenType, hash string) (bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	byType, ok := c.store[tokenType]
	if !ok {
		c.mu.RUnlock()
		return false, nil
	}
	expiresAt, ok := byType[hash]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		if byType2, ok2 := c.store[tokenType]; ok2 {
			delete(byType2, hash)
			if len(byType2) == 0 {
				delete(c.store, tokenType)
			}
		}
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemoryConsumedTokenCache) Mark(_ context.Context, tokenType, hash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byType, ok := c.store[tokenType]
	if !ok {
		byType = make(map[string]time.Time)
		c.store[tokenType] = byType
	}
	byType[hash] = time.Now().UTC().Add(ttl)
	return nil
}

func (c *InMemoryConsumedTokenCache) InvalidateType(_ context.Context, tokenType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, tokenType)
	return nil
}
