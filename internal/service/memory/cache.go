package memory

import (
	"crypto/md5"
	"encoding/hex"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheSentiment = "neutral"
	defaultCacheTask      = "general"
)

// DefaultCacheTTL 与生成服务默认的缓存有效期一致。
const DefaultCacheTTL = time.Hour

// CacheStats 汇总缓存命中情况。
type CacheStats struct {
	Entries         int     `json:"total_entries"`
	TotalHits       int     `json:"total_hits"`
	AvgHitsPerEntry float64 `json:"avg_hits_per_entry"`
}

type cacheEntry struct {
	value     string
	createdAt time.Time
	hits      int
}

// ResponseCache memoizes generated replies for a fixed TTL measured from insertion.
// Expired entries are evicted lazily by Get. Safe for concurrent use.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
	now     func() time.Time
}

// NewResponseCache creates an empty cache. A non-positive ttl falls back to DefaultCacheTTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// CacheKey fingerprints the normalized message together with the sentiment and task labels.
// Only these semantic inputs participate, so identical requests collide regardless of timing.
func CacheKey(message, sentiment, task string) string {
	if sentiment == "" {
		sentiment = defaultCacheSentiment
	}
	if task == "" {
		task = defaultCacheTask
	}
	normalized := strings.ToLower(strings.TrimSpace(message))
	sum := md5.Sum([]byte(normalized + "_" + sentiment + "_" + task))
	return hex.EncodeToString(sum[:])
}

// TTL returns the configured freshness window.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached reply while it is fresh. An empty value is never a hit.
func (c *ResponseCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if entry.value == "" || c.now().Sub(entry.createdAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}

	entry.hits++
	log.Printf("[cache] hit #%d key=%s", entry.hits, shortKey(key))
	return entry.value, true
}

// Put stores value under key, restarting its TTL and hit count.
func (c *ResponseCache) Put(key, value string) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{value: value, createdAt: c.now()}
	c.mu.Unlock()

	log.Printf("[cache] stored key=%s", shortKey(key))
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	log.Println("[cache] cleared")
}

// Stats reports entry and hit counts without touching freshness.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Entries: len(c.entries)}
	for _, entry := range c.entries {
		stats.TotalHits += entry.hits
	}
	if stats.Entries > 0 {
		stats.AvgHitsPerEntry = float64(stats.TotalHits) / float64(stats.Entries)
	}
	return stats
}

func shortKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12]
}
