package tenants

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// SettingsLoader reads settings from the source of truth.
type SettingsLoader interface {
	GetSettings(ctx context.Context, tenantID uuid.UUID) (Settings, error)
}

type cachedSettings struct {
	settings  Settings
	expiresAt time.Time
}

// SettingsCache is a read-through cache with a short TTL. Writers call
// Invalidate so the next read goes to the loader.
type SettingsCache struct {
	loader SettingsLoader
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[uuid.UUID]cachedSettings
	group   singleflight.Group
}

// NewSettingsCache creates a cache. A nil clock uses time.Now.
func NewSettingsCache(loader SettingsLoader, ttl time.Duration, now func() time.Time) *SettingsCache {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SettingsCache{
		loader:  loader,
		ttl:     ttl,
		now:     now,
		entries: make(map[uuid.UUID]cachedSettings),
	}
}

// Get returns cached settings or loads them. Concurrent misses for the
// same tenant share one load.
func (c *SettingsCache) Get(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.settings, nil
	}

	v, err, _ := c.group.Do(tenantID.String(), func() (interface{}, error) {
		settings, err := c.loader.GetSettings(ctx, tenantID)
		if err != nil {
			return Settings{}, err
		}
		c.mu.Lock()
		c.entries[tenantID] = cachedSettings{settings: settings, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return settings, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

// Invalidate drops one tenant's entry.
func (c *SettingsCache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
	c.group.Forget(tenantID.String())
}
