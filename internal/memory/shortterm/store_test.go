package shortterm_test

import (
	"testing"
	"time"

	"alex/internal/memory/shortterm"
)

func TestStoreRetrieveRoundTrip(t *testing.T) {
	store := shortterm.New(10, time.Hour)
	store.Store("k1", []byte("hello"), map[string]string{"a": "1"})

	item, ok := store.Retrieve("k1")
	if !ok {
		t.Fatalf("expected k1 to be present")
	}
	if string(item.Value) != "hello" {
		t.Fatalf("expected value hello, got %s", item.Value)
	}
	if item.AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", item.AccessCount)
	}

	if _, ok := store.Retrieve("k1"); !ok {
		t.Fatalf("expected second retrieve to hit")
	}
	stats := store.Stats()
	if stats.Hits != 2 {
		t.Fatalf("expected 2 hits, got %d", stats.Hits)
	}
}

func TestStoreEvictsLRUOnOverflow(t *testing.T) {
	store := shortterm.New(2, time.Hour)
	store.Store("a", []byte("1"), nil)
	store.Store("b", []byte("2"), nil)
	store.Retrieve("a") // promote a, b becomes the LRU victim
	store.Store("c", []byte("3"), nil)

	if store.Exists("b") {
		t.Fatalf("expected b to be evicted")
	}
	if !store.Exists("a") || !store.Exists("c") {
		t.Fatalf("expected a and c to remain")
	}
}

func TestRetrieveExpiresPastTTL(t *testing.T) {
	store := shortterm.New(10, time.Millisecond)
	store.Store("k", []byte("v"), nil)
	time.Sleep(5 * time.Millisecond)

	if _, ok := store.Retrieve("k"); ok {
		t.Fatalf("expected key to be expired")
	}
	stats := store.Stats()
	if stats.Misses == 0 {
		t.Fatalf("expected a recorded miss")
	}
}

func TestCleanupExpiredRemovesStaleEntries(t *testing.T) {
	store := shortterm.New(10, time.Millisecond)
	store.Store("k", []byte("v"), nil)
	time.Sleep(5 * time.Millisecond)

	removed := store.CleanupExpired()
	if removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", removed)
	}
}

func TestClearEmptiesStore(t *testing.T) {
	store := shortterm.New(10, time.Hour)
	store.Store("k", []byte("v"), nil)
	store.Clear()
	if store.Exists("k") {
		t.Fatalf("expected store to be empty after Clear")
	}
}
