// Package midterm implements the durable, TTL-bounded session tier with an
// optional hot-cache collaborator in front of it (spec §4.2).
package midterm

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"alex/internal/memory/domain"
	"alex/internal/shared/logging"
)

// Durable is the narrow adapter interface over whatever backs durable
// storage (in-memory for tests, Postgres in production). Keys are opaque
// strings; values are pre-serialized blobs.
type Durable interface {
	Put(ctx context.Context, key string, item domain.MemoryItem) error
	Get(ctx context.Context, key string) (domain.MemoryItem, bool, error)
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
}

// HotCache is the optional low-latency collaborator in front of Durable.
// Implementations (e.g. Redis) may be unreachable at any time; every caller
// in this package treats that as a cache miss, never as a fatal error.
type HotCache interface {
	Get(ctx context.Context, key string) (domain.MemoryItem, bool, error)
	Set(ctx context.Context, key string, item domain.MemoryItem, horizon time.Duration) error
}

// memDurable is an in-process Durable used when no external store is wired.
type memDurable struct {
	mu    sync.RWMutex
	items map[string]domain.MemoryItem
}

// NewInMemoryDurable builds a process-local Durable backing (loses data on
// restart, unlike real durable storage — suitable for tests and as the
// default when no database adapter is configured).
func NewInMemoryDurable() Durable {
	return &memDurable{items: make(map[string]domain.MemoryItem)}
}

func (d *memDurable) Put(_ context.Context, key string, item domain.MemoryItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[key] = item
	return nil
}

func (d *memDurable) Get(_ context.Context, key string) (domain.MemoryItem, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[key]
	return item, ok, nil
}

func (d *memDurable) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, key)
	return nil
}

func (d *memDurable) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items), nil
}

// workingEntry tracks the LRU position of a key inside the bounded working
// set, independent of whether its durable record has expired.
type workingEntry struct {
	key string
	el  *list.Element
}

// Store is the mid-term tier: write-through to Durable, bounded working set
// evicted LRU, optional HotCache read-through with a 24h repopulation
// horizon, and a session-oriented facade.
type Store struct {
	mu             sync.Mutex
	durable        Durable
	cache          HotCache
	ttl            time.Duration
	workingSetSize int
	hotHorizon     time.Duration
	order          *list.List
	index          map[string]workingEntry
	logger         *logging.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithHotCache wires an optional hot-cache collaborator.
func WithHotCache(cache HotCache) Option {
	return func(s *Store) { s.cache = cache }
}

// New builds a mid-term Store. ttl defaults to 30 days; workingSetSize
// bounds the in-memory LRU index (the durable record survives eviction from
// this index until its own TTL expiry).
func New(durable Durable, ttl time.Duration, workingSetSize int, hotHorizon time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if workingSetSize <= 0 {
		workingSetSize = 2000
	}
	if hotHorizon <= 0 {
		hotHorizon = 24 * time.Hour
	}
	s := &Store{
		durable:        durable,
		ttl:            ttl,
		workingSetSize: workingSetSize,
		hotHorizon:     hotHorizon,
		order:          list.New(),
		index:          make(map[string]workingEntry),
		logger:         logging.MemoryLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) touch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.index[key]; ok {
		s.order.MoveToFront(entry.el)
		return
	}
	el := s.order.PushFront(key)
	s.index[key] = workingEntry{key: key, el: el}
	for s.order.Len() > s.workingSetSize {
		back := s.order.Back()
		if back == nil {
			break
		}
		evictKey := back.Value.(string)
		s.order.Remove(back)
		delete(s.index, evictKey)
	}
}

// Put writes item under key, write-through to durable storage and
// registering it in the bounded working set.
func (s *Store) Put(ctx context.Context, key string, item domain.MemoryItem) error {
	if err := s.durable.Put(ctx, key, item); err != nil {
		return err
	}
	s.touch(key)
	return nil
}

// Get reads key, consulting the hot cache first when wired. A cache error or
// miss falls through to durable storage transparently; TTL expiry deletes
// from both layers and returns absent.
func (s *Store) Get(ctx context.Context, key string) (domain.MemoryItem, bool, error) {
	if s.cache != nil {
		item, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("hot cache unreachable for key=%s, falling through to durable storage: %s", key, err)
		} else if ok {
			s.touch(key)
			return item, true, nil
		}
	}

	item, ok, err := s.durable.Get(ctx, key)
	if err != nil {
		return domain.MemoryItem{}, false, err
	}
	if !ok {
		return domain.MemoryItem{}, false, nil
	}
	if s.ttl > 0 && time.Since(item.CreatedAt) > s.ttl {
		_ = s.durable.Delete(ctx, key)
		s.mu.Lock()
		if entry, exists := s.index[key]; exists {
			s.order.Remove(entry.el)
			delete(s.index, key)
		}
		s.mu.Unlock()
		return domain.MemoryItem{}, false, nil
	}

	s.touch(key)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, item, s.hotHorizon); err != nil {
			s.logger.Warn("failed to repopulate hot cache for key=%s: %s", key, err)
		}
	}
	return item, true, nil
}

// Delete removes key from both layers.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	if entry, ok := s.index[key]; ok {
		s.order.Remove(entry.el)
		delete(s.index, key)
	}
	s.mu.Unlock()
	return s.durable.Delete(ctx, key)
}

// Count returns the number of durable records.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.durable.Count(ctx)
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// StoreSessionSummary writes a SessionSummary under its session-keyed slot.
// A zero CreatedAt is stamped with the current time so the TTL counts from
// the write.
func (s *Store) StoreSessionSummary(ctx context.Context, summary domain.SessionSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	created := summary.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return s.Put(ctx, sessionKey(summary.SessionID), domain.MemoryItem{
		Key:        sessionKey(summary.SessionID),
		Value:      payload,
		CreatedAt:  created,
		AccessedAt: summary.LastActivity,
	})
}

// DeleteSessionSummary removes sessionID's SessionSummary, if any.
func (s *Store) DeleteSessionSummary(ctx context.Context, sessionID string) error {
	return s.Delete(ctx, sessionKey(sessionID))
}

// RetrieveSessionSummary reads the SessionSummary for sessionID.
func (s *Store) RetrieveSessionSummary(ctx context.Context, sessionID string) (domain.SessionSummary, bool, error) {
	item, ok, err := s.Get(ctx, sessionKey(sessionID))
	if err != nil || !ok {
		return domain.SessionSummary{}, ok, err
	}
	var summary domain.SessionSummary
	if err := json.Unmarshal(item.Value, &summary); err != nil {
		return domain.SessionSummary{}, false, err
	}
	return summary, true, nil
}

// ListSessions returns up to limit session summaries from the working set,
// most-recently-touched first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	s.mu.Lock()
	keys := make([]string, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		k := el.Value.(string)
		if len(k) > 8 && k[:8] == "session:" {
			keys = append(keys, k)
		}
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	s.mu.Unlock()

	summaries := make([]domain.SessionSummary, 0, len(keys))
	for _, key := range keys {
		item, ok, err := s.durable.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var summary domain.SessionSummary
		if err := json.Unmarshal(item.Value, &summary); err == nil {
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}
