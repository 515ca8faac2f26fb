package memory

import (
	"context"

	"quizroom-service/internal/domain"
)

// QuizStore is a static in-memory implementation of app.QuizRepository,
// useful for demos and tests.
type QuizStore struct {
	quizzes map[string]domain.Quiz
}

func NewQuizStore(quizzes map[string]domain.Quiz) *QuizStore {
	return &QuizStore{quizzes: quizzes}
}

func (s *QuizStore) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := s.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
