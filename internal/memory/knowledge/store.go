// Package knowledge implements the namespaced, substring-ranked knowledge
// base tier (spec §4.4). A chromem-go collection per namespace shadows the
// authoritative in-memory index, persisting documents so a Phase-2 scorer
// could later query them by similarity without changing this package's
// contract; chromem-go write failures are logged and never propagate, the
// same advisory-collaborator discipline the mid-term tier applies to its hot
// cache, since determinism (the one hard requirement of §4.4) is guaranteed
// by the in-memory index alone.
package knowledge

import (
	"context"
	"crypto/sha256"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"alex/internal/memory/domain"
	"alex/internal/shared/logging"
)

// deterministicEmbed turns text into a small fixed-dimension vector derived
// from its hash, so chromem-go's collection can store documents without
// calling out to any external embedding API. Phase-1 ranking never reads
// these vectors; they exist only so the persisted record is queryable by a
// future phase without a storage migration.
func deterministicEmbed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i]) / 255.0
	}
	return vec, nil
}

// Store holds a finite set of namespaces, each a map from doc_id to
// KnowledgeDocument.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]domain.KnowledgeDocument
	db         *chromem.DB
	logger     *logging.Logger
}

// New builds a Store backed by an in-memory chromem-go database for
// persistence shadowing.
func New() *Store {
	return &Store{
		namespaces: make(map[string]map[string]domain.KnowledgeDocument),
		db:         chromem.NewDB(),
		logger:     logging.MemoryLogger,
	}
}

func (s *Store) collection(namespace string) (*chromem.Collection, error) {
	if c := s.db.GetCollection(namespace, deterministicEmbed); c != nil {
		return c, nil
	}
	return s.db.CreateCollection(namespace, nil, deterministicEmbed)
}

// AddDocument inserts or replaces a document, unique by (namespace, doc_id).
func (s *Store) AddDocument(ctx context.Context, doc domain.KnowledgeDocument) error {
	s.mu.Lock()
	ns, ok := s.namespaces[doc.Namespace]
	if !ok {
		ns = make(map[string]domain.KnowledgeDocument)
		s.namespaces[doc.Namespace] = ns
	}
	ns[doc.DocID] = doc
	s.mu.Unlock()

	collection, err := s.collection(doc.Namespace)
	if err != nil {
		s.logger.Warn("knowledge base shadow collection unavailable for namespace=%s: %s", doc.Namespace, err)
		return nil
	}
	if err := collection.AddDocument(ctx, chromem.Document{
		ID:       doc.DocID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	}); err != nil {
		s.logger.Warn("knowledge base shadow write failed for namespace=%s doc_id=%s: %s", doc.Namespace, doc.DocID, err)
	}
	return nil
}

// Get fetches a single document by (namespace, doc_id).
func (s *Store) Get(_ context.Context, namespace, docID string) (domain.KnowledgeDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return domain.KnowledgeDocument{}, false
	}
	doc, ok := ns[docID]
	return doc, ok
}

// Delete removes a document by (namespace, doc_id).
func (s *Store) Delete(ctx context.Context, namespace, docID string) {
	s.mu.Lock()
	if ns, ok := s.namespaces[namespace]; ok {
		delete(ns, docID)
	}
	s.mu.Unlock()

	if collection, err := s.collection(namespace); err == nil {
		if err := collection.Delete(ctx, nil, nil, docID); err != nil {
			s.logger.Warn("knowledge base shadow delete failed for namespace=%s doc_id=%s: %s", namespace, docID, err)
		}
	}
}

// scored pairs a document with its Phase-1 containment score, for sorting.
type scored struct {
	doc   domain.KnowledgeDocument
	score float64
}

// Search ranks documents by substring containment on content: a
// case-insensitive count of query occurrences, normalized so a perfect
// whole-content match scores 1.0. Results are ordered by descending score,
// then ascending (namespace, doc_id) as a stable tiebreak, deterministically
// regardless of insertion order. An empty namespace searches every
// namespace.
func (s *Store) Search(_ context.Context, query, namespace string, limit int) []domain.KnowledgeDocument {
	if limit <= 0 {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	var candidates []scored
	for ns, docs := range s.namespaces {
		if namespace != "" && ns != namespace {
			continue
		}
		for _, doc := range docs {
			score := containmentScore(needle, doc.Content)
			if score <= 0 {
				continue
			}
			candidates = append(candidates, scored{doc: doc, score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].doc.Namespace != candidates[j].doc.Namespace {
			return candidates[i].doc.Namespace < candidates[j].doc.Namespace
		}
		return candidates[i].doc.DocID < candidates[j].doc.DocID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]domain.KnowledgeDocument, len(candidates))
	for i, c := range candidates {
		out[i] = c.doc
	}
	return out
}

func containmentScore(needle, content string) float64 {
	if needle == "" {
		return 0
	}
	haystack := strings.ToLower(content)
	count := strings.Count(haystack, needle)
	if count == 0 {
		return 0
	}
	matched := float64(count * len(needle))
	total := float64(len(haystack))
	if total == 0 {
		return 0
	}
	score := matched / total
	if score > 1 {
		score = 1
	}
	return score
}

// Count returns the total document count across every namespace.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, docs := range s.namespaces {
		n += len(docs)
	}
	return n
}
