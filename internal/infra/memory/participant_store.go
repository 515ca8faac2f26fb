package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizroom-service/internal/domain"
)

// ParticipantStore is an in-memory implementation of app.ParticipantRepository.
type ParticipantStore struct {
	mu     sync.RWMutex
	byID   map[string]domain.Participant
	byRoom map[string][]string
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		byID:   make(map[string]domain.Participant),
		byRoom: make(map[string][]string),
	}
}

func (s *ParticipantStore) Add(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = *p
	s.byRoom[p.RoomID] = append(s.byRoom[p.RoomID], p.ID)
	return nil
}

func (s *ParticipantStore) Get(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

// MarkFinished sets finished_at once; later calls keep the first timestamp.
func (s *ParticipantStore) MarkFinished(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.FinishedAt == nil {
		p.FinishedAt = &at
		s.byID[id] = p
	}
	return nil
}

func (s *ParticipantStore) ListByRoom(_ context.Context, roomID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRoom[roomID]
	parts := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, s.byID[id])
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].JoinedAt.Before(parts[j].JoinedAt) })
	return parts, nil
}
