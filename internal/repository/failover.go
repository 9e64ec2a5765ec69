package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverMappingCache prefers the primary cache (redis) and falls back to
// the in-memory one when the primary misbehaves, probing for recovery after
// a minute.
type FailoverMappingCache struct {
	primary   MappingCache
	fallback  MappingCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverMappingCache(primary, fallback MappingCache, logger *zerolog.Logger) *FailoverMappingCache {
	return &FailoverMappingCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FailoverMappingCache) Get(ctx context.Context, bookID string) (string, error) {
	if c.primaryUsable() {
		pageID, err := c.primary.Get(ctx, bookID)
		if err == nil {
			return pageID, nil
		}
		c.markDown(err)
	}
	return c.fallback.Get(ctx, bookID)
}

func (c *FailoverMappingCache) Set(ctx context.Context, bookID, pageID string) error {
	if c.primaryUsable() {
		if err := c.primary.Set(ctx, bookID, pageID); err != nil {
			c.markDown(err)
		}
	}
	return c.fallback.Set(ctx, bookID, pageID)
}

func (c *FailoverMappingCache) Clear(ctx context.Context) error {
	if c.primaryUsable() {
		if err := c.primary.Clear(ctx); err != nil {
			c.markDown(err)
		}
	}
	return c.fallback.Clear(ctx)
}

func (c *FailoverMappingCache) primaryUsable() bool {
	if !c.isDown.Load() {
		return true
	}
	// Probe for recovery after a minute of staying on the fallback.
	last := time.Unix(c.lastCheck.Load(), 0)
	if time.Since(last) > time.Minute {
		c.isDown.Store(false)
		return true
	}
	return false
}

func (c *FailoverMappingCache) markDown(err error) {
	c.logger.Error().Err(err).Msg("Primary mapping cache failed, falling back to memory")
	c.isDown.Store(true)
	c.lastCheck.Store(time.Now().Unix())
}
