package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/fasthash/fnv1a"
	"github.com/zeebo/blake3"

	"github.com/thomasrohde/oscript/pkg/ast"
)

const cacheShards = 16

// DefaultCacheEntries bounds a cache created with a non-positive size.
const DefaultCacheEntries = 1024

type cacheKey [32]byte

type cacheEntry struct {
	program  *ast.Program
	lastUsed time.Time
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// Cache holds parsed programs keyed by the hash of their file name and
// source. Cached programs are shared between evaluations and must not be
// modified.
type Cache struct {
	shards   [cacheShards]cacheShard
	perShard int
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewCache creates a cache holding at most maxEntries programs.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	perShard := (maxEntries + cacheShards - 1) / cacheShards
	c := &Cache{perShard: perShard, now: time.Now}
	for i := range c.shards {
		c.shards[i].entries = make(map[cacheKey]*cacheEntry)
	}
	return c
}

func keyOf(filename, source string) cacheKey {
	h := blake3.New()
	_, _ = h.Write([]byte(filename))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(source))
	var key cacheKey
	copy(key[:], h.Sum(nil))
	return key
}

func (c *Cache) shard(key cacheKey) *cacheShard {
	return &c.shards[fnv1a.HashBytes32(key[:])%cacheShards]
}

// Get returns the cached program for source, if any.
func (c *Cache) Get(filename, source string) (*ast.Program, bool) {
	key := keyOf(filename, source)
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e.lastUsed = c.now()
	c.hits.Add(1)
	return e.program, true
}

// Put stores a parsed program, evicting the least recently used entry of its
// shard when the shard is full.
func (c *Cache) Put(filename, source string, program *ast.Program) {
	key := keyOf(filename, source)
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok && len(s.entries) >= c.perShard {
		var oldest cacheKey
		var oldestAt time.Time
		first := true
		for k, e := range s.entries {
			if first || e.lastUsed.Before(oldestAt) {
				oldest, oldestAt, first = k, e.lastUsed, false
			}
		}
		delete(s.entries, oldest)
	}
	s.entries[key] = &cacheEntry{program: program, lastUsed: c.now()}
}

// Prune drops entries not used for maxIdle and returns how many were dropped.
func (c *Cache) Prune(maxIdle time.Duration) int {
	cutoff := c.now().Add(-maxIdle)
	dropped := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, e := range s.entries {
			if e.lastUsed.Before(cutoff) {
				delete(s.entries, k)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats reports the entry count and hit/miss counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Entries: c.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
