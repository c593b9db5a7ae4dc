package services

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/metrics"
)

// DirectoryLister returns the names of the regular entries of a directory.
type DirectoryLister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// OSLister reads the directory on every call.
type OSLister struct{}

func (OSLister) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

type listing struct {
	names    []string
	modTime  time.Time
	cachedAt time.Time
}

// CachedLister keeps listings per directory until the TTL expires or the
// directory's modification time changes. Returned slices are shared and must
// not be modified.
type CachedLister struct {
	inner   DirectoryLister
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]listing
}

func NewCachedLister(inner DirectoryLister, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *CachedLister {
	return &CachedLister{
		inner:   inner,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]listing),
	}
}

func (c *CachedLister) List(ctx context.Context, dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		c.Invalidate(dir)
		return nil, err
	}

	c.mu.RLock()
	cached, ok := c.entries[dir]
	c.mu.RUnlock()

	if ok {
		if c.now().Sub(cached.cachedAt) < c.ttl && cached.modTime.Equal(info.ModTime()) {
			c.metrics.CacheLookup("hit")
			return cached.names, nil
		}
		c.metrics.CacheLookup("stale")
		c.logger.Debug("Directory listing expired", zap.String("dir", dir))
	} else {
		c.metrics.CacheLookup("miss")
	}

	names, err := c.inner.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[dir] = listing{names: names, modTime: info.ModTime(), cachedAt: c.now()}
	c.mu.Unlock()

	return names, nil
}

func (c *CachedLister) Invalidate(dir string) {
	c.mu.Lock()
	delete(c.entries, dir)
	c.mu.Unlock()
}

// Purge drops every cached listing.
func (c *CachedLister) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]listing)
	c.mu.Unlock()
}

// Len returns the number of cached directories.
func (c *CachedLister) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
