// Package cache provides in-memory caching for data archives and rendered artifacts.
package cache

import (
	"archive/zip"
	"bytes"
	"sync"
	"time"

	"github.com/xxxbrian/clash-geosite/internal/metrics"
)

// ArchiveCache holds the bytes of a zip snapshot and a reader over them.
type ArchiveCache struct {
	mu      sync.RWMutex
	reader  *zip.Reader
	version string
	modTime time.Time
}

// NewArchiveCache creates an empty ArchiveCache.
func NewArchiveCache() *ArchiveCache {
	return &ArchiveCache{}
}

// Get returns the cached zip.Reader and its version if it was loaded from a
// file with the given modification time.
func (c *ArchiveCache) Get(modTime time.Time) (*zip.Reader, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.reader == nil || !c.modTime.Equal(modTime) {
		return nil, "", false
	}
	return c.reader, c.version, true
}

// GetAny returns the cached zip.Reader regardless of modification time.
func (c *ArchiveCache) GetAny() (*zip.Reader, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.reader == nil {
		return nil, "", false
	}
	return c.reader, c.version, true
}

// Set replaces the cached archive.
func (c *ArchiveCache) Set(data []byte, version string, modTime time.Time) (*zip.Reader, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reader = reader
	c.version = version
	c.modTime = modTime
	return reader, nil
}

// Version returns the version of the cached archive.
func (c *ArchiveCache) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// ResultCache caches rendered artifacts
type ResultCache struct {
	mu      sync.RWMutex
	results map[string]*cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	value     []byte
	timestamp time.Time
	version   string
}

// NewResultCache creates a new ResultCache with the specified TTL
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		results: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Get retrieves a cached result if it was rendered from the same source
// version and has not expired.
func (c *ResultCache) Get(key, version string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.results[key]
	if !ok || entry.version != version || time.Since(entry.timestamp) > c.ttl {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return entry.value, true
}

// Set stores a result in the cache
func (c *ResultCache) Set(key string, value []byte, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = &cacheEntry{
		value:     value,
		timestamp: time.Now(),
		version:   version,
	}
}

// Len returns the number of cached entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Cleanup removes expired entries
func (c *ResultCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.results {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.results, key)
		}
	}
}
