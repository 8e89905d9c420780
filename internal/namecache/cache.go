// Package namecache memoizes channel id → display name lookups for the
// lifetime of an ingestion run.
package namecache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/Log-Tools/telegram-ingest/internal/telemetry"
)

// Lookup fetches an entity by its numeric id.
type Lookup interface {
	LookupEntity(ctx context.Context, id int64) (platform.Entity, error)
}

// Cache maps channel ids to display names. Failed lookups are never cached.
type Cache struct {
	lookup Lookup
	logger *slog.Logger

	mu    sync.RWMutex
	names map[int64]string
}

// New creates an empty cache backed by lookup.
func New(lookup Lookup, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		lookup: lookup,
		logger: logger.With(slog.String("component", "namecache")),
		names:  make(map[int64]string),
	}
}

// Resolve returns the cached name for id, looking it up on a miss. A failed
// lookup yields platform.UnknownName without populating the cache.
func (c *Cache) Resolve(ctx context.Context, id int64) string {
	if name, ok := c.Get(id); ok {
		return name
	}

	entity, err := c.lookup.LookupEntity(ctx, id)
	if err != nil {
		c.logger.Warn("⚠️ failed to resolve channel name", slog.Int64("channel_id", id), slog.Any("err", err))
		return platform.UnknownName
	}

	return c.store(id, entity.DisplayName())
}

// Remember seeds the cache from an already-resolved entity.
func (c *Cache) Remember(entity platform.Entity) string {
	return c.store(entity.ID, entity.DisplayName())
}

// Get returns the cached name for id without performing a lookup.
func (c *Cache) Get(id int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[id]
	return name, ok
}

// store keeps the first name written for an id.
func (c *Cache) store(id int64, name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.names[id]; ok {
		return existing
	}
	c.names[id] = name
	telemetry.SetCachedNames(len(c.names))
	return name
}
