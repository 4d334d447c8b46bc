package facade_test

import (
	"context"
	"testing"
	"time"

	"alex/internal/memory/domain"
	"alex/internal/memory/facade"
	"alex/internal/memory/knowledge"
	"alex/internal/memory/longterm"
	"alex/internal/memory/midterm"
	"alex/internal/memory/shortterm"
)

func newFacade() *facade.Facade {
	st := shortterm.New(1000, time.Hour)
	mt := midterm.New(midterm.NewInMemoryDurable(), time.Hour, 100, time.Hour)
	lt := longterm.New()
	kb := knowledge.New()
	return facade.New(st, mt, lt, kb)
}

func TestIngestTurnIsObservableBySameSessionRead(t *testing.T) {
	f := newFacade()
	ctx := context.Background()

	if _, err := f.IngestTurn(ctx, "s1", domain.SpeakerUser, "hello", nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	buf := f.ConversationBuffer("s1")
	if len(buf) != 1 || buf[0].Content != "hello" {
		t.Fatalf("expected ingested turn to be observable, got %+v", buf)
	}
}

func TestConversationBufferCapsAtTwelve(t *testing.T) {
	f := newFacade()
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if _, err := f.IngestTurn(ctx, "s1", domain.SpeakerUser, "turn", nil); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	buf := f.ConversationBuffer("s1")
	if len(buf) != facade.ConversationBufferCap {
		t.Fatalf("expected buffer capped at %d, got %d", facade.ConversationBufferCap, len(buf))
	}
	if buf[0].TurnIndex != 8 {
		t.Fatalf("expected oldest retained turn_index 8, got %d", buf[0].TurnIndex)
	}
}

func TestIngestTurnRejectsInvalidSpeaker(t *testing.T) {
	f := newFacade()
	ctx := context.Background()
	if _, err := f.IngestTurn(ctx, "s1", domain.Speaker("nobody"), "x", nil); err == nil {
		t.Fatalf("expected invalid speaker to be rejected")
	}
}

func TestSaveAndLoadSessionRoundTrip(t *testing.T) {
	f := newFacade()
	ctx := context.Background()
	history := []domain.TurnRecord{
		{SessionID: "s1", Speaker: domain.SpeakerUser, Content: "hi", Timestamp: time.Now()},
		{SessionID: "s1", Speaker: domain.Speaker("host"), Content: "hello!", Timestamp: time.Now()},
	}
	summary, err := f.SaveSession(ctx, "s1", "u1", history, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if summary.TurnCount != 2 {
		t.Fatalf("expected turn_count 2, got %d", summary.TurnCount)
	}

	loaded, ok, err := f.LoadSession(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.TurnCount != 2 {
		t.Fatalf("expected loaded turn_count 2, got %d", loaded.TurnCount)
	}
}

func TestSearchKnowledgeIsBestEffort(t *testing.T) {
	f := newFacade()
	ctx := context.Background()
	results := f.SearchKnowledge(ctx, "anything", "", 10)
	if results == nil && len(results) != 0 {
		t.Fatalf("expected an empty, non-panicking result")
	}
}

func TestCrossTierSearchOrdersByScoreThenLayerThenID(t *testing.T) {
	f := newFacade()
	ctx := context.Background()
	if _, err := f.IngestTurn(ctx, "s1", domain.SpeakerUser, "the secret phrase is zanzibar", nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	results, err := f.CrossTierSearch(ctx, "zanzibar", []string{facade.LayerShortTerm, facade.LayerKnowledge}, 10)
	if err != nil {
		t.Fatalf("cross-tier search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].Layer != facade.LayerShortTerm {
		t.Fatalf("expected short_term match, got %s", results[0].Layer)
	}
}

func TestUpdatePersonaKPIDefaultsDeltaToOne(t *testing.T) {
	f := newFacade()
	ctx := context.Background()
	kpi, err := f.UpdatePersonaKPI(ctx, "host", domain.KPIThumbsUp, 0)
	if err != nil {
		t.Fatalf("update kpi: %v", err)
	}
	if kpi.ThumbsUp != 1 {
		t.Fatalf("expected default delta of 1, got %d", kpi.ThumbsUp)
	}
}
