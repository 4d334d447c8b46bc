package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"alex/internal/dispatch"
)

// ChatHandlers exposes the /chat/* routes over a dispatch.Core.
type ChatHandlers struct {
	core *dispatch.Core
}

// NewChatHandlers builds ChatHandlers wrapping core.
func NewChatHandlers(core *dispatch.Core) *ChatHandlers {
	return &ChatHandlers{core: core}
}

type chatRequestDTO struct {
	SessionID string `json:"session_id"`
	UserInput string `json:"user_input"`
	Character string `json:"character,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// Chat handles POST /chat, dispatching to the streaming handler when the
// body requests it (spec §6's stream=false default, or a client that always
// POSTs to /chat/stream instead).
func (h *ChatHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	var body chatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	if body.Stream {
		h.stream(w, r, claims.Subject, body)
		return
	}

	resp, err := h.core.Chat(r.Context(), dispatch.ChatRequest{
		UserID: claims.Subject, ExternalSessionID: body.SessionID, UserInput: body.UserInput, Character: body.Character,
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": resp.SessionID, "character": resp.Character, "response": resp.Response,
		"metadata": resp.Metadata, "timestamp": resp.Timestamp,
	})
}

// Stream handles POST /chat/stream, always streaming regardless of the
// body's stream field.
func (h *ChatHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	var body chatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
		return
	}
	h.stream(w, r, claims.Subject, body)
}

func (h *ChatHandlers) stream(w http.ResponseWriter, r *http.Request, userID string, body chatRequestDTO) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported by this connection", nil)
		return
	}

	frags, err := h.core.ChatStream(r.Context(), dispatch.ChatRequest{
		UserID: userID, ExternalSessionID: body.SessionID, UserInput: body.UserInput, Character: body.Character,
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	for frag := range frags {
		if frag.Err != nil {
			continue
		}
		if frag.Done {
			fmt.Fprint(bw, "data: [DONE]\n\n")
			_ = bw.Flush()
			flusher.Flush()
			break
		}
		fmt.Fprintf(bw, "data: %s\n\n", frag.Text)
		_ = bw.Flush()
		flusher.Flush()
	}
}

// History handles GET /chat/history/{session}.
func (h *ChatHandlers) History(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	session := r.PathValue("session")
	limit := intQuery(r, "limit", 0)
	offset := intQuery(r, "offset", 0)

	turns := h.core.History(claims.Subject, session, limit, offset)
	out := make([]map[string]any, len(turns))
	for i, t := range turns {
		out[i] = map[string]any{
			"turn_index": t.TurnIndex, "speaker": t.Speaker, "content": t.Content, "timestamp": t.Timestamp,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": out})
}

// Sessions handles GET /chat/sessions.
func (h *ChatHandlers) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	sessions := h.core.SessionsWithCounts(claims.Subject)
	out := make([]map[string]any, len(sessions))
	for i, s := range sessions {
		out[i] = map[string]any{"session_id": s.ExternalSessionID, "turn_count": s.TurnCount}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// DeleteSession handles DELETE /chat/sessions/{session}; clearing an
// already-clear session is a no-op, matching the dispatch core's contract.
func (h *ChatHandlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
		return
	}
	session := r.PathValue("session")
	if err := h.core.ClearSession(r.Context(), claims.Subject, session); err != nil {
		writeClassifiedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
