// Package cache provides caching for rendered layer tiles and viewport
// snapshots.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB   int
	TileTTL           time.Duration
	SnapshotCacheSize int
}

// Manager manages the tile and snapshot caches.
type Manager struct {
	tileCache     *bigcache.BigCache
	snapshotCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	tileCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       100 * 1024, // 100KB per tile
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	snapshotCache, err := lru.New[string, []byte](cfg.SnapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	return &Manager{
		tileCache:     tileCache,
		snapshotCache: snapshotCache,
	}, nil
}

// GetTile retrieves a rendered tile from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores a rendered tile in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetSnapshot retrieves a serialized viewport snapshot from cache.
func (m *Manager) GetSnapshot(key string) ([]byte, bool) {
	return m.snapshotCache.Get(key)
}

// SetSnapshot stores a serialized viewport snapshot.
func (m *Manager) SetSnapshot(key string, data []byte) {
	m.snapshotCache.Add(key, data)
}

// InvalidateSnapshot drops a cached snapshot after a state mutation.
func (m *Manager) InvalidateSnapshot(key string) {
	m.snapshotCache.Remove(key)
}

// LayerTileKey generates a cache key for a rendered layer tile. The
// revision counter invalidates tiles when layer state changes.
func LayerTileKey(viewerID, layerID string, z, x, y int, revision uint64) string {
	return fmt.Sprintf("tile:%s:%s:%d/%d/%d:r%d", viewerID, layerID, z, x, y, revision)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_cache_len":     m.tileCache.Len(),
		"tile_cache_cap":     m.tileCache.Capacity(),
		"snapshot_cache_len": m.snapshotCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
