package http_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestMemory_CreateSearchDelete(t *testing.T) {
	h, deps := newTestRouter(t)
	token, _ := registerAndLogin(t, deps.Auth, "kate")

	w := doJSON(t, h, "POST", "/api/v1/memory", map[string]any{
		"memory_type": "knowledge", "content": "the rocket launch was postponed to Tuesday",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created struct {
		MemoryID string `json:"memory_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.MemoryID == "" {
		t.Fatal("expected a non-empty memory id")
	}

	w = doJSON(t, h, "POST", "/api/v1/memory/search", map[string]any{
		"query": "rocket launch", "memory_types": []string{"knowledge"}, "limit": 10,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, body = %s", w.Code, w.Body.String())
	}
	var results struct {
		Results []map[string]any `json:"results"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &results)
	if len(results.Results) != 1 {
		t.Fatalf("results len = %d, want 1, body = %s", len(results.Results), w.Body.String())
	}

	w = doJSON(t, h, "DELETE", "/api/v1/memory/"+created.MemoryID+"?memory_type=knowledge", nil, token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, "POST", "/api/v1/memory/search", map[string]any{
		"query": "rocket launch", "memory_types": []string{"knowledge"}, "limit": 10,
	}, token)
	_ = json.Unmarshal(w.Body.Bytes(), &results)
	if len(results.Results) != 0 {
		t.Fatalf("results len after delete = %d, want 0", len(results.Results))
	}
}

func TestMemory_SearchRejectsOutOfRangeLimit(t *testing.T) {
	h, deps := newTestRouter(t)
	token, _ := registerAndLogin(t, deps.Auth, "leo")

	w := doJSON(t, h, "POST", "/api/v1/memory/search", map[string]any{"query": "x", "limit": 0}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an out-of-range limit, body = %s", w.Code, w.Body.String())
	}
}

func TestMemory_Stats(t *testing.T) {
	h, deps := newTestRouter(t)
	token, _ := registerAndLogin(t, deps.Auth, "mona")

	w := doJSON(t, h, "GET", "/api/v1/memory/stats", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, body = %s", w.Code, w.Body.String())
	}
	var stats map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if _, ok := stats["short_term_count"]; !ok {
		t.Fatalf("expected short_term_count in stats response, got %v", stats)
	}
}

func TestMemory_AdminFlushRequiresAdmin(t *testing.T) {
	h, deps := newTestRouter(t)
	token, _ := registerAndLogin(t, deps.Auth, "nina")

	w := doJSON(t, h, "POST", "/api/v1/memory/admin/flush", nil, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for a non-admin caller", w.Code)
	}
}

func TestMemory_AdminFlushAsAdminSucceeds(t *testing.T) {
	auth, users := newTestAuth(t)
	mem := newTestFacade()
	h := rebuildRouterFrom(auth, mem)

	token, _ := registerAdminAndLogin(t, auth, users, "oscar")

	w := doJSON(t, h, "POST", "/api/v1/memory/admin/flush", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Migrated int `json:"migrated_sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode flush response: %v", err)
	}
}
