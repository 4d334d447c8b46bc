package http

import (
	"encoding/json"
	"net/http"

	"alex/internal/dispatch"
	"alex/internal/memory/facade"
)

// MemoryHandlers exposes the /memory/* routes over a memory facade, using a
// dispatch.Core only for its external->internal session id translation so
// /memory/* addresses the same sessions /chat/* does.
type MemoryHandlers struct {
	core  *dispatch.Core
	store *facade.Facade
}

// NewMemoryHandlers builds MemoryHandlers wrapping store and core.
func NewMemoryHandlers(core *dispatch.Core, store *facade.Facade) *MemoryHandlers {
	return &MemoryHandlers{core: core, store: store}
}

var searchableLayers = []string{facade.LayerShortTerm, facade.LayerKnowledge}

// Search handles POST /memory/search.
func (h *MemoryHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if _, ok := claimsFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	var body struct {
		Query       string   `json:"query"`
		MemoryTypes []string `json:"memory_types"`
		SessionID   string   `json:"session_id,omitempty"`
		Limit       int      `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	if body.Limit < 1 || body.Limit > 100 {
		writeError(w, http.StatusBadRequest, "validation_error", "limit must be within [1, 100]", nil)
		return
	}
	layers := body.MemoryTypes
	if len(layers) == 0 {
		layers = searchableLayers
	}
	// session_id narrows which documents a future phase's scorer considers;
	// the Phase-1 deterministic ranker searches across the full knowledge
	// base and short-term tier regardless (see facade.CrossTierSearch).

	results, err := h.store.CrossTierSearch(r.Context(), body.Query, layers, body.Limit)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	out := make([]map[string]any, len(results))
	for i, res := range results {
		out[i] = map[string]any{
			"memory_id": res.MemoryID, "content": res.Content, "layer": res.Layer,
			"timestamp": res.Timestamp, "score": res.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// Create handles POST /memory.
func (h *MemoryHandlers) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	var body struct {
		MemoryType string            `json:"memory_type"`
		Content    string            `json:"content"`
		SessionID  string            `json:"session_id,omitempty"`
		Metadata   map[string]string `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	namespace := body.SessionID
	if namespace != "" {
		namespace = h.core.InternalSessionID(claims.Subject, body.SessionID)
	}
	id, err := h.store.CreateMemory(r.Context(), body.MemoryType, body.Content, namespace, body.Metadata)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"memory_id": id, "memory_type": body.MemoryType})
}

// Delete handles DELETE /memory/{id}. memory_type and session_id (used as
// the knowledge namespace) are supplied as query parameters since the route
// carries only the id.
func (h *MemoryHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	id := r.PathValue("id")
	memoryType := r.URL.Query().Get("memory_type")
	sessionID := r.URL.Query().Get("session_id")
	namespace := sessionID
	if namespace != "" {
		namespace = h.core.InternalSessionID(claims.Subject, sessionID)
	}
	if err := h.store.DeleteMemory(r.Context(), memoryType, id, namespace); err != nil {
		writeClassifiedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /memory/stats.
func (h *MemoryHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := claimsFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	stats := h.store.Stats(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"short_term_count": stats.ShortTermCount, "short_term_hits": stats.ShortTermHits,
		"short_term_misses": stats.ShortTermMisses, "mid_term_count": stats.MidTermCount,
		"long_term_count": stats.LongTermCount, "knowledge_count": stats.KnowledgeCount,
		"total_turns": stats.TotalTurns, "total_sessions": stats.TotalSessions,
	})
}

// DeleteSessionAll handles DELETE /memory/sessions/{s}/all.
func (h *MemoryHandlers) DeleteSessionAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	session := r.PathValue("s")
	internalID := h.core.InternalSessionID(claims.Subject, session)
	if err := h.store.DeleteSessionRecords(r.Context(), internalID); err != nil {
		writeClassifiedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminFlush handles POST /memory/admin/flush, admin-only.
func (h *MemoryHandlers) AdminFlush(w http.ResponseWriter, r *http.Request) {
	migrated, err := h.store.Migrate(r.Context())
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"migrated_sessions": migrated})
}
