// Package facade sits above the four memory tiers and the ephemeral
// conversation buffer, exposing the ingest/retrieval core (spec §4.5).
package facade

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"alex/internal/memory/domain"
	"alex/internal/memory/knowledge"
	"alex/internal/memory/longterm"
	"alex/internal/memory/midterm"
	"alex/internal/memory/shortterm"
	"alex/internal/shared/errors"
	"alex/internal/shared/logging"
)

// Layer names used by cross-tier search and stats.
const (
	LayerShortTerm = "short_term"
	LayerMidTerm   = "mid_term"
	LayerLongTerm  = "long_term"
	LayerKnowledge = "knowledge"
)

// ConversationBufferCap is the FIFO cap on the ephemeral last-N-turns buffer.
const ConversationBufferCap = 12

// Facade is the single entry point memory-facing callers (the dispatch core,
// the HTTP handlers) use; it never exposes the tiers directly.
type Facade struct {
	shortTerm *shortterm.Store
	midTerm   *midterm.Store
	longTerm  *longterm.Store
	knowledge *knowledge.Store

	mu       sync.Mutex
	buffers  map[string][]domain.TurnRecord
	turnIdx  map[string]int
	totals   struct {
		turns    int64
		sessions int64
	}

	logger *logging.Logger
}

// New wires the four tiers into a Facade.
func New(st *shortterm.Store, mt *midterm.Store, lt *longterm.Store, kb *knowledge.Store) *Facade {
	return &Facade{
		shortTerm: st,
		midTerm:   mt,
		longTerm:  lt,
		knowledge: kb,
		buffers:   make(map[string][]domain.TurnRecord),
		turnIdx:   make(map[string]int),
		logger:    logging.MemoryLogger,
	}
}

var allowedSpeakers = map[domain.Speaker]bool{
	domain.SpeakerUser:   true,
	domain.SpeakerSystem: true,
}

// AllowSpeaker registers persona as a valid TurnRecord speaker.
func (f *Facade) AllowSpeaker(persona string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowedSpeakers[domain.Speaker(persona)] = true
}

// IngestTurn validates speaker, pushes to the conversation buffer (FIFO,
// cap 12), writes the turn into the short-term tier and increments
// total_turns. The whole operation either succeeds or is rolled back;
// failure is always propagated (fatal-on-failure per §4.5).
func (f *Facade) IngestTurn(ctx context.Context, sessionID string, speaker domain.Speaker, content string, metadata map[string]string) (domain.TurnRecord, error) {
	f.mu.Lock()
	if !allowedSpeakers[speaker] {
		f.mu.Unlock()
		return domain.TurnRecord{}, errors.NewPermanentError(domain.ErrInvalidSpeaker, "validation")
	}
	turnIndex := f.turnIdx[sessionID]
	f.turnIdx[sessionID] = turnIndex + 1
	f.mu.Unlock()

	turn := domain.TurnRecord{
		SessionID: sessionID,
		TurnIndex: turnIndex,
		Speaker:   speaker,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	key := fmt.Sprintf("turn:%s:%d", sessionID, turnIndex)
	payload := []byte(content)
	f.shortTerm.Store(key, payload, metadata)

	if !f.shortTerm.Exists(key) {
		// write was evicted immediately (pathological max_items=0 config);
		// roll back the turn index bump so retries reuse the same slot.
		f.mu.Lock()
		f.turnIdx[sessionID] = turnIndex
		f.mu.Unlock()
		return domain.TurnRecord{}, errors.NewTransientError(fmt.Errorf("short-term tier rejected turn write"), "memory")
	}

	f.mu.Lock()
	buf := append(f.buffers[sessionID], turn)
	if len(buf) > ConversationBufferCap {
		buf = buf[len(buf)-ConversationBufferCap:]
	}
	f.buffers[sessionID] = buf
	f.totals.turns++
	f.mu.Unlock()

	return turn, nil
}

// ConversationBuffer returns the ephemeral last-N turns for sessionID.
func (f *Facade) ConversationBuffer(sessionID string) []domain.TurnRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.buffers[sessionID]
	out := make([]domain.TurnRecord, len(buf))
	copy(out, buf)
	return out
}

// SaveSession computes a SessionSummary from history and writes it to
// mid-term, incrementing total_sessions.
func (f *Facade) SaveSession(ctx context.Context, sessionID, ownerID string, history []domain.TurnRecord, payload []byte) (domain.SessionSummary, error) {
	histogram := make(map[domain.Speaker]int)
	characters := 0
	var created, last time.Time
	for i, turn := range history {
		histogram[turn.Speaker]++
		characters += len(turn.Content)
		if i == 0 || turn.Timestamp.Before(created) {
			created = turn.Timestamp
		}
		if turn.Timestamp.After(last) {
			last = turn.Timestamp
		}
	}
	if created.IsZero() {
		created = time.Now()
	}
	if last.IsZero() {
		last = created
	}

	summary := domain.SessionSummary{
		SessionID:        sessionID,
		OwnerID:          ownerID,
		CreatedAt:        created,
		LastActivity:     last,
		TurnCount:        len(history),
		SpeakerHistogram: histogram,
		CharactersUsed:   characters,
		Payload:          payload,
	}

	if err := f.midTerm.StoreSessionSummary(ctx, summary); err != nil {
		return domain.SessionSummary{}, errors.NewTransientError(err, "memory")
	}

	f.mu.Lock()
	f.totals.sessions++
	f.mu.Unlock()

	return summary, nil
}

// LoadSession reads a SessionSummary from mid-term (hot cache first).
func (f *Facade) LoadSession(ctx context.Context, sessionID string) (domain.SessionSummary, bool, error) {
	summary, ok, err := f.midTerm.RetrieveSessionSummary(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, false, errors.NewTransientError(err, "memory")
	}
	return summary, ok, nil
}

// UpdatePersonaKPI delegates to long-term, defaulting delta to 1.
func (f *Facade) UpdatePersonaKPI(ctx context.Context, persona string, kind domain.KPIKind, delta int64) (domain.PersonaKPI, error) {
	if delta == 0 {
		delta = 1
	}
	kpi, err := f.longTerm.IncrementKPI(ctx, persona, kind, delta)
	if err != nil {
		return domain.PersonaKPI{}, errors.NewPermanentError(err, "memory")
	}
	return kpi, nil
}

// SearchKnowledge delegates to the knowledge base tier. Best-effort: a
// backend failure is swallowed, logged, and reported as an empty result,
// because a caller inside a response-generation path must still produce a
// reply.
func (f *Facade) SearchKnowledge(ctx context.Context, query, namespace string, limit int) []domain.KnowledgeDocument {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("knowledge search panicked, returning empty result: %v", r)
		}
	}()
	return f.knowledge.Search(ctx, query, namespace, limit)
}

// CrossTierSearch fans out a query across the named layers concurrently,
// merges results into a uniform shape, and caps the combined result at
// limit. Ordering is descending score, then ascending (layer, memory_id).
func (f *Facade) CrossTierSearch(ctx context.Context, query string, layers []string, limit int) ([]domain.CrossTierResult, error) {
	group, gctx := errgroup.WithContext(ctx)
	resultsByLayer := make([][]domain.CrossTierResult, len(layers))

	for i, layer := range layers {
		i, layer := i, layer
		group.Go(func() error {
			results, err := f.searchLayer(gctx, layer, query, limit)
			if err != nil {
				return err
			}
			resultsByLayer[i] = results
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.NewTransientError(err, "memory")
	}

	var merged []domain.CrossTierResult
	for _, results := range resultsByLayer {
		merged = append(merged, results...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].Layer != merged[j].Layer {
			return merged[i].Layer < merged[j].Layer
		}
		return merged[i].MemoryID < merged[j].MemoryID
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (f *Facade) searchLayer(ctx context.Context, layer, query string, limit int) ([]domain.CrossTierResult, error) {
	switch layer {
	case LayerShortTerm:
		var out []domain.CrossTierResult
		for _, key := range f.shortTerm.Keys() {
			item, ok := f.shortTerm.Retrieve(key)
			if !ok {
				continue
			}
			if containsFold(string(item.Value), query) {
				out = append(out, domain.CrossTierResult{
					MemoryID:  key,
					Content:   string(item.Value),
					Layer:     LayerShortTerm,
					Timestamp: item.AccessedAt,
					Score:     1,
				})
			}
		}
		return capResults(out, limit), nil
	case LayerKnowledge:
		docs := f.knowledge.Search(ctx, query, "", limit)
		out := make([]domain.CrossTierResult, len(docs))
		for i, doc := range docs {
			out[i] = domain.CrossTierResult{
				MemoryID:  doc.Namespace + ":" + doc.DocID,
				Content:   doc.Content,
				Layer:     LayerKnowledge,
				Timestamp: doc.UpdatedAt,
				Score:     1,
			}
		}
		return out, nil
	case LayerMidTerm, LayerLongTerm:
		// mid-term and long-term records are opaque blobs keyed by session
		// or persona, not free-text searchable in Phase-1; an empty result
		// still satisfies the fan-out contract.
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown memory layer %q", layer)
	}
}

func capResults(in []domain.CrossTierResult, limit int) []domain.CrossTierResult {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return len(haystack) >= len(needle) && indexFold(haystack, needle) >= 0
}

func indexFold(haystack, needle string) int {
	hl, nl := len(haystack), len(needle)
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Stats returns per-tier counts and global counters.
func (f *Facade) Stats(ctx context.Context) domain.MemoryStats {
	stStats := f.shortTerm.Stats()
	midCount, _ := f.midTerm.Count(ctx)
	longCount, _ := f.longTerm.Count(ctx)

	f.mu.Lock()
	totalTurns, totalSessions := f.totals.turns, f.totals.sessions
	f.mu.Unlock()

	return domain.MemoryStats{
		ShortTermCount:  stStats.Items,
		ShortTermHits:   stStats.Hits,
		ShortTermMisses: stStats.Misses,
		MidTermCount:    midCount,
		LongTermCount:   longCount,
		KnowledgeCount:  f.knowledge.Count(),
		TotalTurns:      totalTurns,
		TotalSessions:   totalSessions,
	}
}

// NewMemoryID mints a fresh identifier for a created record (e.g. the
// /memory POST endpoint's memory_id response field).
func NewMemoryID() string {
	return uuid.NewString()
}

// SessionHistory returns sessionID's buffered turns ordered by turn_index,
// honoring limit and offset. The ephemeral buffer retains only the most
// recent ConversationBufferCap turns, so history beyond that horizon is not
// recoverable from this call — a caller needing the full durable record
// should read the session's SessionSummary instead.
func (f *Facade) SessionHistory(sessionID string, limit, offset int) []domain.TurnRecord {
	f.mu.Lock()
	buf := f.buffers[sessionID]
	out := make([]domain.TurnRecord, len(buf))
	copy(out, buf)
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TurnIndex < out[j].TurnIndex })

	if offset > 0 {
		if offset >= len(out) {
			return nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// CreateMemory writes a single free-standing record into the named tier and
// returns its minted memory id. Only the three free-text/blob tiers accept
// direct writes outside the turn-ingestion and KPI paths; long-term is
// structured (profiles, KPIs) and has no generic "memory" shape to create.
func (f *Facade) CreateMemory(ctx context.Context, memoryType, content, sessionID string, metadata map[string]string) (string, error) {
	id := NewMemoryID()
	switch memoryType {
	case LayerShortTerm:
		key := "memory:" + id
		f.shortTerm.Store(key, []byte(content), metadata)
	case LayerMidTerm:
		key := "memory:" + id
		item := domain.MemoryItem{Key: key, Value: []byte(content), Metadata: metadata, CreatedAt: time.Now()}
		if err := f.midTerm.Put(ctx, key, item); err != nil {
			return "", errors.NewTransientError(err, "memory")
		}
	case LayerKnowledge:
		namespace := sessionID
		if namespace == "" {
			namespace = "default"
		}
		doc := domain.KnowledgeDocument{
			Namespace: namespace,
			DocID:     id,
			Content:   content,
			Metadata:  metadata,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := f.knowledge.AddDocument(ctx, doc); err != nil {
			return "", errors.NewTransientError(err, "memory")
		}
	default:
		return "", fmt.Errorf("unsupported memory_type %q", memoryType)
	}
	return id, nil
}

// DeleteMemory removes a single record created by CreateMemory (or, for
// knowledge, any document) from the named tier. sessionID doubles as the
// knowledge namespace, matching CreateMemory's convention.
func (f *Facade) DeleteMemory(ctx context.Context, memoryType, id, sessionID string) error {
	switch memoryType {
	case LayerShortTerm:
		f.shortTerm.Delete("memory:" + id)
	case LayerMidTerm:
		if err := f.midTerm.Delete(ctx, "memory:"+id); err != nil {
			return errors.NewTransientError(err, "memory")
		}
	case LayerKnowledge:
		namespace := sessionID
		if namespace == "" {
			namespace = "default"
		}
		f.knowledge.Delete(ctx, namespace, id)
	default:
		return fmt.Errorf("unsupported memory_type %q", memoryType)
	}
	return nil
}

// DeleteSessionRecords removes every record belonging to sessionID: its
// ephemeral conversation buffer, its mid-term session summary, and its
// short-term turn entries.
func (f *Facade) DeleteSessionRecords(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	delete(f.buffers, sessionID)
	delete(f.turnIdx, sessionID)
	f.mu.Unlock()

	for _, key := range f.shortTerm.Keys() {
		if strings.HasPrefix(key, "turn:"+sessionID+":") {
			f.shortTerm.Delete(key)
		}
	}

	if err := f.midTerm.DeleteSessionSummary(ctx, sessionID); err != nil {
		return errors.NewTransientError(err, "memory")
	}
	return nil
}

// Migrate forces the short-term tier's pending turns into mid-term session
// summaries, one per distinct session currently buffered, and returns the
// count of sessions migrated (spec §6 admin/flush).
func (f *Facade) Migrate(ctx context.Context) (int, error) {
	f.mu.Lock()
	sessionIDs := make([]string, 0, len(f.buffers))
	histories := make(map[string][]domain.TurnRecord, len(f.buffers))
	for sessionID, buf := range f.buffers {
		sessionIDs = append(sessionIDs, sessionID)
		cp := make([]domain.TurnRecord, len(buf))
		copy(cp, buf)
		histories[sessionID] = cp
	}
	f.mu.Unlock()

	migrated := 0
	for _, sessionID := range sessionIDs {
		history := histories[sessionID]
		ownerID := sessionID
		if len(history) > 0 {
			ownerID = history[0].SessionID
		}
		if _, err := f.SaveSession(ctx, sessionID, ownerID, history, nil); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}
