// Package longterm implements the no-TTL, content-addressed profile/KPI
// tier (spec §4.3).
package longterm

import (
	"context"
	"encoding/json"
	"sync"

	"alex/internal/memory/domain"
)

// Store is an in-process key-to-blob map with no TTL, one record per key,
// exposing UserProfile and PersonaKPI facades on top of the same backing.
type Store struct {
	mu      sync.Mutex
	records map[string][]byte
	kpiMu   map[string]*sync.Mutex
}

// New builds an in-process Store. Records are held in process memory only;
// there is no durable backing, so they do not survive a restart.
func New() *Store {
	return &Store{
		records: make(map[string][]byte),
		kpiMu:   make(map[string]*sync.Mutex),
	}
}

func profileKey(userID string) string { return "user:" + userID }
func kpiKey(persona string) string    { return "character:" + persona + ":kpi" }

// PutProfile writes profile, keyed by user_id, as a single content-addressed
// record.
func (s *Store) PutProfile(_ context.Context, userID string, profile any) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[profileKey(userID)] = payload
	return nil
}

// GetProfile reads the profile for userID into out.
func (s *Store) GetProfile(_ context.Context, userID string, out any) (bool, error) {
	s.mu.Lock()
	payload, ok := s.records[profileKey(userID)]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) lockFor(persona string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.kpiMu[persona]
	if !ok {
		m = &sync.Mutex{}
		s.kpiMu[persona] = m
	}
	return m
}

// InitializeKPI creates a zeroed PersonaKPI record for persona if absent.
func (s *Store) InitializeKPI(ctx context.Context, persona string) (domain.PersonaKPI, error) {
	lock := s.lockFor(persona)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok, err := s.readKPI(persona); err != nil {
		return domain.PersonaKPI{}, err
	} else if ok {
		return existing, nil
	}

	kpi := domain.PersonaKPI{Persona: persona}
	if err := s.writeKPI(kpi); err != nil {
		return domain.PersonaKPI{}, err
	}
	return kpi, nil
}

// IncrementKPI atomically adds delta to the named counter for persona and
// recomputes Level per the spec's derived-attribute rule. Concurrent
// increments of the same persona are serialized by a per-persona mutex.
func (s *Store) IncrementKPI(ctx context.Context, persona string, kind domain.KPIKind, delta int64) (domain.PersonaKPI, error) {
	lock := s.lockFor(persona)
	lock.Lock()
	defer lock.Unlock()

	kpi, ok, err := s.readKPI(persona)
	if err != nil {
		return domain.PersonaKPI{}, err
	}
	if !ok {
		kpi = domain.PersonaKPI{Persona: persona}
	}

	switch kind {
	case domain.KPIThumbsUp:
		kpi.ThumbsUp += delta
	case domain.KPIAnswerHits:
		kpi.AnswerHits += delta
	case domain.KPISearchSuccess:
		kpi.SearchSuccess += delta
	case domain.KPITotalResponse:
		kpi.TotalResponses += delta
	}
	kpi.RecomputeLevel()

	if err := s.writeKPI(kpi); err != nil {
		return domain.PersonaKPI{}, err
	}
	return kpi, nil
}

// GetKPI reads the current PersonaKPI for persona.
func (s *Store) GetKPI(_ context.Context, persona string) (domain.PersonaKPI, bool, error) {
	return s.readKPI(persona)
}

func (s *Store) readKPI(persona string) (domain.PersonaKPI, bool, error) {
	s.mu.Lock()
	payload, ok := s.records[kpiKey(persona)]
	s.mu.Unlock()
	if !ok {
		return domain.PersonaKPI{}, false, nil
	}
	var kpi domain.PersonaKPI
	if err := json.Unmarshal(payload, &kpi); err != nil {
		return domain.PersonaKPI{}, false, err
	}
	return kpi, true, nil
}

func (s *Store) writeKPI(kpi domain.PersonaKPI) error {
	payload, err := json.Marshal(kpi)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[kpiKey(kpi.Persona)] = payload
	return nil
}

// Count returns the total number of records (profiles + KPIs).
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}
