package dispatch

import (
	"fmt"
	"sync"
)

// SessionMap holds the per-user external→internal session id mapping. The
// dispatch core is the sole authority for minting internal ids (spec §3,
// "Ownership and lifetimes").
type SessionMap struct {
	mu    sync.Mutex
	byUser map[string]map[string]string // user_id -> external_id -> internal_id
}

// NewSessionMap builds an empty SessionMap.
func NewSessionMap() *SessionMap {
	return &SessionMap{byUser: make(map[string]map[string]string)}
}

// InternalID looks up or creates the internal id for (userID, externalID).
// Creation is idempotent: repeated calls with the same pair return the same
// internal id, and distinct pairs never collide.
func (m *SessionMap) InternalID(userID, externalID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.byUser[userID]
	if !ok {
		sessions = make(map[string]string)
		m.byUser[userID] = sessions
	}
	if internal, ok := sessions[externalID]; ok {
		return internal
	}
	internal := fmt.Sprintf("user_%s_%s", userID, externalID)
	sessions[externalID] = internal
	return internal
}

// ListExternalSessions returns every external session id known for userID.
func (m *SessionMap) ListExternalSessions(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := m.byUser[userID]
	out := make([]string, 0, len(sessions))
	for external := range sessions {
		out = append(out, external)
	}
	return out
}

// Forget removes the mapping for (userID, externalID), e.g. on session clear.
func (m *SessionMap) Forget(userID, externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessions, ok := m.byUser[userID]; ok {
		delete(sessions, externalID)
	}
}
