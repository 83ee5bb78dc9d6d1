// Package dedup detects pages whose extracted content was already emitted
// under another URL.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

// Config sizes the underlying cache.
type Config struct {
	Shards       int
	LifeWindow   time.Duration
	MaxEntrySize int
	// HardMaxCacheSizeMB caps memory use; 0 means unbounded.
	HardMaxCacheSizeMB int
}

// DefaultConfig fits a single run of a few thousand pages.
func DefaultConfig() Config {
	return Config{
		Shards:             64,
		LifeWindow:         30 * time.Minute,
		MaxEntrySize:       256,
		HardMaxCacheSizeMB: 32,
	}
}

// Cache maps content digests to the first URL that produced them.
type Cache struct {
	cache  *bigcache.BigCache
	hasher crawler.Hasher
}

// New creates a Cache. Close releases its background cleaner.
func New(ctx context.Context, hasher crawler.Hasher, cfg Config) (*Cache, error) {
	if hasher == nil {
		return nil, errors.New("dedup: hasher is required")
	}
	def := DefaultConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = def.LifeWindow
	}
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = def.MaxEntrySize
	}
	cache, err := bigcache.New(ctx, bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         cfg.LifeWindow,
		CleanWindow:        cfg.LifeWindow / 2,
		MaxEntriesInWindow: 1000 * cfg.Shards,
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   cfg.HardMaxCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}
	return &Cache{cache: cache, hasher: hasher}, nil
}

// Check records text under pageURL. When identical text was seen before it
// returns the earlier URL and true. Whitespace differences are ignored.
// Empty text is never a duplicate.
func (c *Cache) Check(text, pageURL string) (string, bool, error) {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return "", false, nil
	}
	digest, err := c.hasher.Hash([]byte(normalized))
	if err != nil {
		return "", false, fmt.Errorf("hash content: %w", err)
	}
	if first, err := c.cache.Get(digest); err == nil {
		return string(first), true, nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		return "", false, fmt.Errorf("read dedup cache: %w", err)
	}
	if err := c.cache.Set(digest, []byte(pageURL)); err != nil {
		return "", false, fmt.Errorf("write dedup cache: %w", err)
	}
	return "", false, nil
}

// Len returns the number of distinct digests recorded.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Close stops the cache.
func (c *Cache) Close() error {
	if err := c.cache.Close(); err != nil {
		return fmt.Errorf("close dedup cache: %w", err)
	}
	return nil
}
