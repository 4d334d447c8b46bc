package knowledge_test

import (
	"context"
	"testing"

	"alex/internal/memory/domain"
	"alex/internal/memory/knowledge"
)

func TestAddGetDelete(t *testing.T) {
	store := knowledge.New()
	ctx := context.Background()

	doc := domain.KnowledgeDocument{Namespace: "docs", DocID: "d1", Content: "the quick brown fox"}
	if err := store.AddDocument(ctx, doc); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, ok := store.Get(ctx, "docs", "d1")
	if !ok || got.Content != doc.Content {
		t.Fatalf("expected doc to round-trip, got ok=%v doc=%+v", ok, got)
	}

	store.Delete(ctx, "docs", "d1")
	if _, ok := store.Get(ctx, "docs", "d1"); ok {
		t.Fatalf("expected doc to be deleted")
	}
}

func TestSearchIsDeterministicAndTieBreaks(t *testing.T) {
	store := knowledge.New()
	ctx := context.Background()

	_ = store.AddDocument(ctx, domain.KnowledgeDocument{Namespace: "b", DocID: "1", Content: "fox fox fox"})
	_ = store.AddDocument(ctx, domain.KnowledgeDocument{Namespace: "a", DocID: "1", Content: "fox fox fox"})
	_ = store.AddDocument(ctx, domain.KnowledgeDocument{Namespace: "a", DocID: "2", Content: "a lone fox"})

	first := store.Search(ctx, "fox", "", 10)
	second := store.Search(ctx, "fox", "", 10)

	if len(first) != len(second) {
		t.Fatalf("expected stable result length")
	}
	for i := range first {
		if first[i].Namespace != second[i].Namespace || first[i].DocID != second[i].DocID {
			t.Fatalf("expected identical ordering across repeated calls")
		}
	}
	// equal scores (namespace "a" doc "1" and namespace "b" doc "1" both have
	// 3 occurrences in equal-length content) tie-break by (namespace, doc_id)
	if first[0].Namespace != "a" || first[0].DocID != "1" {
		t.Fatalf("expected (a,1) to sort first on tie, got (%s,%s)", first[0].Namespace, first[0].DocID)
	}
}

func TestSearchRespectsNamespaceScope(t *testing.T) {
	store := knowledge.New()
	ctx := context.Background()
	_ = store.AddDocument(ctx, domain.KnowledgeDocument{Namespace: "a", DocID: "1", Content: "needle here"})
	_ = store.AddDocument(ctx, domain.KnowledgeDocument{Namespace: "b", DocID: "1", Content: "needle here too"})

	results := store.Search(ctx, "needle", "a", 10)
	if len(results) != 1 || results[0].Namespace != "a" {
		t.Fatalf("expected only namespace a, got %+v", results)
	}
}

func TestSearchCapsAtLimit(t *testing.T) {
	store := knowledge.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = store.AddDocument(ctx, domain.KnowledgeDocument{Namespace: "n", DocID: string(rune('a' + i)), Content: "match"})
	}
	results := store.Search(ctx, "match", "", 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}
