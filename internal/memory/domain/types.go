// Package domain holds the data model shared by every memory tier.
package domain

import (
	"errors"
	"time"
)

// Speaker enumerates who produced a TurnRecord.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerSystem Speaker = "system"
)

// IsPersona reports whether s names a configured persona rather than one of
// the two fixed speakers (user, system).
func IsPersona(s Speaker, personas []string) bool {
	for _, p := range personas {
		if string(s) == p {
			return true
		}
	}
	return false
}

// MemoryItem is the atomic unit stored by the short-, mid- and long-term
// tiers. Value is opaque to the store.
type MemoryItem struct {
	Key         string
	Value       []byte
	Metadata    map[string]string
	CreatedAt   time.Time
	AccessedAt  time.Time
	AccessCount int64
}

// TurnRecord is one utterance or reply within a session.
type TurnRecord struct {
	SessionID string
	TurnIndex int
	Speaker   Speaker
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// SessionSummary is the one durable record per session_id.
type SessionSummary struct {
	SessionID        string
	OwnerID          string
	CreatedAt        time.Time
	LastActivity     time.Time
	TurnCount        int
	SpeakerHistogram map[Speaker]int
	CharactersUsed   int
	Payload          []byte
}

// PersonaKPI tracks engagement counters for one persona.
type PersonaKPI struct {
	Persona        string
	ThumbsUp       int64
	AnswerHits     int64
	SearchSuccess  int64
	TotalResponses int64
	Level          int64
}

// RecomputeLevel derives Level from the three raw counters per the
// level = floor(sqrt((thumbs_up + answer_hits + search_success) / 10)) rule.
func (k *PersonaKPI) RecomputeLevel() {
	sum := k.ThumbsUp + k.AnswerHits + k.SearchSuccess
	k.Level = isqrt(sum / 10)
}

func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r := int64(1)
	for r*r <= n {
		r++
	}
	return r - 1
}

// KPIKind names which PersonaKPI counter an increment targets.
type KPIKind string

const (
	KPIThumbsUp      KPIKind = "thumbs_up"
	KPIAnswerHits    KPIKind = "answer_hits"
	KPISearchSuccess KPIKind = "search_success"
	KPITotalResponse KPIKind = "total_responses"
)

// KnowledgeDocument is one entry in a knowledge-base namespace.
type KnowledgeDocument struct {
	Namespace string
	DocID     string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuotaSnapshot is the per-user, per-UTC-day chargeable operation counter.
type QuotaSnapshot struct {
	UserID        string
	CalendarDayUTC string
	Used          int64
	ResetAt       time.Time
}

// CrossTierResult is the uniform shape returned by the facade's fan-out
// cross-tier search.
type CrossTierResult struct {
	MemoryID  string
	Content   string
	Layer     string
	Timestamp time.Time
	Score     float64
}

// MemoryStats reports per-tier counts and global counters for a caller.
type MemoryStats struct {
	ShortTermCount  int
	ShortTermHits   int64
	ShortTermMisses int64
	MidTermCount    int
	LongTermCount   int
	KnowledgeCount  int
	TotalTurns      int64
	TotalSessions   int64
}

var (
	ErrNotFound        = errors.New("memory: not found")
	ErrDuplicateTurn   = errors.New("memory: duplicate turn_index")
	ErrInvalidSpeaker  = errors.New("memory: invalid speaker")
	ErrLimitOutOfRange = errors.New("memory: limit out of range")
)
