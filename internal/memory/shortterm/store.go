// Package shortterm implements the ephemeral, process-local, TTL-bounded
// memory tier (spec §4.1).
package shortterm

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"alex/internal/memory/domain"
)

// Stats reports hit/miss counters observed since process start.
type Stats struct {
	Items  int
	Hits   int64
	Misses int64
}

// Store is an in-process ordered mapping from key to MemoryItem, bounded by
// MaxItems and per-item TTL. Eviction is LRU by accessed_at: the underlying
// hashicorp/golang-lru cache promotes an entry to most-recently-used on
// every Get, which is exactly the "oldest accessed_at is dropped first"
// policy the tier requires.
type Store struct {
	mu        sync.Mutex
	cache     *lru.Cache[string, *domain.MemoryItem]
	ttl       time.Duration
	hits      int64
	misses    int64
}

// New builds a Store bounded to maxItems entries, each with the given TTL.
func New(maxItems int, ttl time.Duration) *Store {
	if maxItems <= 0 {
		maxItems = 1
	}
	cache, _ := lru.New[string, *domain.MemoryItem](maxItems)
	return &Store{cache: cache, ttl: ttl}
}

// Store upserts key with value and metadata, stamping created_at/accessed_at.
func (s *Store) Store(key string, value []byte, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	item := &domain.MemoryItem{
		Key:         key,
		Value:       value,
		Metadata:    metadata,
		CreatedAt:   now,
		AccessedAt:  now,
		AccessCount: 0,
	}
	s.cache.Add(key, item)
}

// Retrieve returns the item for key, touching its accessed_at/access_count on
// success. A past-TTL item is deleted on read and reported absent.
func (s *Store) Retrieve(key string) (domain.MemoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cache.Get(key)
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		return domain.MemoryItem{}, false
	}
	if s.ttl > 0 && time.Since(item.CreatedAt) > s.ttl {
		s.cache.Remove(key)
		atomic.AddInt64(&s.misses, 1)
		return domain.MemoryItem{}, false
	}
	item.AccessedAt = time.Now()
	item.AccessCount++
	atomic.AddInt64(&s.hits, 1)
	return *item, true
}

// Exists reports presence without mutating access bookkeeping beyond what
// Retrieve already does; it delegates to Retrieve for correctness of the TTL
// check and is O(1) amortized like every other operation here except Cleanup.
func (s *Store) Exists(key string) bool {
	_, ok := s.Retrieve(key)
	return ok
}

// Delete removes key unconditionally.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}

// Keys returns every live key, without TTL filtering (callers wanting only
// live keys should follow up with Exists, or call CleanupExpired first).
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Keys()
}

// CleanupExpired scans every entry and evicts those past TTL. O(n).
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl <= 0 {
		return 0
	}
	removed := 0
	now := time.Now()
	for _, key := range s.cache.Keys() {
		item, ok := s.cache.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(item.CreatedAt) > s.ttl {
			s.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats reports the current item count and cumulative hit/miss counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Items:  s.cache.Len(),
		Hits:   atomic.LoadInt64(&s.hits),
		Misses: atomic.LoadInt64(&s.misses),
	}
}
