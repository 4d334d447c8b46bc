package longterm_test

import (
	"context"
	"sync"
	"testing"

	"alex/internal/memory/domain"
	"alex/internal/memory/longterm"
)

func TestPutGetProfileRoundTrip(t *testing.T) {
	store := longterm.New()
	ctx := context.Background()

	type profile struct {
		Username string `json:"username"`
	}
	if err := store.PutProfile(ctx, "u1", profile{Username: "alice"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got profile
	ok, err := store.GetProfile(ctx, "u1", &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Username != "alice" {
		t.Fatalf("expected alice, got %s", got.Username)
	}
}

func TestIncrementKPIRecomputesLevel(t *testing.T) {
	store := longterm.New()
	ctx := context.Background()

	if _, err := store.InitializeKPI(ctx, "host"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	var kpi domain.PersonaKPI
	var err error
	for i := 0; i < 45; i++ {
		kpi, err = store.IncrementKPI(ctx, "host", domain.KPIThumbsUp, 1)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if kpi.ThumbsUp != 45 {
		t.Fatalf("expected 45 thumbs up, got %d", kpi.ThumbsUp)
	}
	// level = floor(sqrt(45/10)) = floor(sqrt(4.5)) = 2
	if kpi.Level != 2 {
		t.Fatalf("expected level 2, got %d", kpi.Level)
	}
}

func TestIncrementKPIIsAtomicUnderConcurrency(t *testing.T) {
	store := longterm.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.IncrementKPI(ctx, "searcher", domain.KPIAnswerHits, 1)
		}()
	}
	wg.Wait()

	kpi, ok, err := store.GetKPI(ctx, "searcher")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if kpi.AnswerHits != 100 {
		t.Fatalf("expected 100 answer hits, got %d", kpi.AnswerHits)
	}
}
