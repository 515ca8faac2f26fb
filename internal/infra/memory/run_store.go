package memory

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/domain"
)

// RunStore is an in-memory implementation of app.RunRepository. singleflight
// collapses concurrent materializations so a room-run is built exactly once
// even when a whole class connects at the same moment.
type RunStore struct {
	sf singleflight.Group

	mu   sync.RWMutex
	runs map[string][]domain.Question
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string][]domain.Question)}
}

func (s *RunStore) GetOrCreate(ctx context.Context, roomID string, build func(context.Context) ([]domain.Question, error)) ([]domain.Question, error) {
	s.mu.RLock()
	if questions, ok := s.runs[roomID]; ok {
		s.mu.RUnlock()
		return questions, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do(roomID, func() (interface{}, error) {
		s.mu.RLock()
		if questions, ok := s.runs[roomID]; ok {
			s.mu.RUnlock()
			return questions, nil
		}
		s.mu.RUnlock()

		questions, err := build(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.runs[roomID] = questions
		s.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}
