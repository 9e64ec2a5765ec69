package repository

import (
	"context"
	"sync"
	"time"
)

// MappingCache is a fast lookup layer in front of the durable page_mappings
// table. A miss is not an error; the resolver falls through to the store.
type MappingCache interface {
	Get(ctx context.Context, bookID string) (string, error)
	Set(ctx context.Context, bookID, pageID string) error
	Clear(ctx context.Context) error
}

type memoryEntry struct {
	pageID    string
	expiresAt time.Time
}

type MemoryMappingCache struct {
	entries sync.Map
	ttl     time.Duration
}

func NewMemoryMappingCache(ttl time.Duration) *MemoryMappingCache {
	return &MemoryMappingCache{ttl: ttl}
}

func (c *MemoryMappingCache) Get(ctx context.Context, bookID string) (string, error) {
	val, ok := c.entries.Load(bookID)
	if !ok {
		return "", nil
	}
	entry := val.(memoryEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.entries.Delete(bookID)
		return "", nil
	}
	return entry.pageID, nil
}

func (c *MemoryMappingCache) Set(ctx context.Context, bookID, pageID string) error {
	c.entries.Store(bookID, memoryEntry{pageID: pageID, expiresAt: time.Now().Add(c.ttl)})
	return nil
}

func (c *MemoryMappingCache) Clear(ctx context.Context) error {
	c.entries.Range(func(key, _ interface{}) bool {
		c.entries.Delete(key)
		return true
	})
	return nil
}
