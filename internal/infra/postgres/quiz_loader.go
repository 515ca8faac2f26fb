package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/domain"
)

// QuizLoader reads quiz content from Postgres. Quizzes are immutable after
// creation, so there is no cache-invalidation concern on this path.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	var quizType, subtype string
	err := l.pool.QueryRow(ctx,
		`SELECT title, quiz_type, COALESCE(subtype, ''), question_count FROM quizzes WHERE id=$1`,
		quizID,
	).Scan(&quiz.Title, &quizType, &subtype, &quiz.QuestionCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz.Type = domain.QuizType(quizType)
	quiz.Subtype = domain.Subtype(subtype)

	if quiz.Type != domain.QuizFixedSet {
		return quiz, nil
	}

	rows, err := l.pool.Query(ctx,
		`SELECT question_text, correct_answer, wrong_answers, order_index
		 FROM static_questions WHERE quiz_id=$1 ORDER BY order_index`,
		quizID,
	)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q domain.FixedQuestion
		if err := rows.Scan(&q.Text, &q.CorrectAnswer, &q.WrongAnswers, &q.OrderIndex); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}
