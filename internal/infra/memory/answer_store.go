package memory

import (
	"context"
	"sync"

	"quizroom-service/internal/domain"
)

type answerKey struct {
	participantID string
	index         int
}

// AnswerStore is an in-memory implementation of app.AnswerRepository with
// insert-if-absent semantics on (participant, question index).
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[answerKey]domain.Answer
	order   []answerKey
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[answerKey]domain.Answer)}
}

func (s *AnswerStore) Insert(_ context.Context, ans *domain.Answer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{participantID: ans.ParticipantID, index: ans.QuestionIndex}
	if _, exists := s.answers[key]; exists {
		return false, nil
	}
	s.answers[key] = *ans
	s.order = append(s.order, key)
	return true, nil
}

func (s *AnswerStore) ListForParticipants(_ context.Context, participantIDs []string) ([]domain.Answer, error) {
	wanted := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for _, key := range s.order {
		if _, ok := wanted[key.participantID]; ok {
			out = append(out, s.answers[key])
		}
	}
	return out, nil
}

func (s *AnswerStore) CountForQuestion(_ context.Context, participantIDs []string, index int) (correct, total int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range participantIDs {
		ans, ok := s.answers[answerKey{participantID: id, index: index}]
		if !ok {
			continue
		}
		total++
		if ans.Correct {
			correct++
		}
	}
	return correct, total, nil
}
