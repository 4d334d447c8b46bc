package midterm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"alex/internal/memory/domain"
	"alex/internal/memory/midterm"
)

func TestStoreSessionSummaryRoundTrip(t *testing.T) {
	store := midterm.New(midterm.NewInMemoryDurable(), time.Hour, 10, time.Hour)
	ctx := context.Background()

	summary := domain.SessionSummary{SessionID: "s1", OwnerID: "u1", TurnCount: 3}
	if err := store.StoreSessionSummary(ctx, summary); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, ok, err := store.RetrieveSessionSummary(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("retrieve: ok=%v err=%v", ok, err)
	}
	if got.TurnCount != 3 || got.OwnerID != "u1" {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestGetFallsThroughWhenHotCacheUnreachable(t *testing.T) {
	durable := midterm.NewInMemoryDurable()
	failingCache := &flakyCache{err: errors.New("connection refused")}
	store := midterm.New(durable, time.Hour, 10, time.Hour, midterm.WithHotCache(failingCache))
	ctx := context.Background()

	if err := store.Put(ctx, "k1", domain.MemoryItem{Key: "k1", Value: []byte("v1"), CreatedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}

	item, ok, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("expected no error when hot cache is unreachable, got %v", err)
	}
	if !ok || string(item.Value) != "v1" {
		t.Fatalf("expected fallthrough to durable storage, got ok=%v item=%+v", ok, item)
	}
}

func TestGetExpiresPastTTL(t *testing.T) {
	store := midterm.New(midterm.NewInMemoryDurable(), time.Millisecond, 10, time.Hour)
	ctx := context.Background()
	_ = store.Put(ctx, "k1", domain.MemoryItem{Key: "k1", Value: []byte("v1"), CreatedAt: time.Now()})
	time.Sleep(5 * time.Millisecond)

	_, ok, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected key to be expired")
	}
}

func TestListSessionsReturnsStored(t *testing.T) {
	store := midterm.New(midterm.NewInMemoryDurable(), time.Hour, 10, time.Hour)
	ctx := context.Background()
	_ = store.StoreSessionSummary(ctx, domain.SessionSummary{SessionID: "s1"})
	_ = store.StoreSessionSummary(ctx, domain.SessionSummary{SessionID: "s2"})

	sessions, err := store.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

type flakyCache struct {
	err error
}

func (f *flakyCache) Get(_ context.Context, _ string) (domain.MemoryItem, bool, error) {
	return domain.MemoryItem{}, false, f.err
}

func (f *flakyCache) Set(_ context.Context, _ string, _ domain.MemoryItem, _ time.Duration) error {
	return f.err
}
