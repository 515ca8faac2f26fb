package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"quizroom-service/internal/domain"
)

// AnswerRepo is the durable answer ledger. The composite primary key on
// (participant_id, question_index) enforces write-once; a conflicting insert
// is dropped so the first answer stands.
type AnswerRepo struct {
	db *bun.DB
}

func NewAnswerRepo(db *bun.DB) *AnswerRepo {
	return &AnswerRepo{db: db}
}

func (r *AnswerRepo) Insert(ctx context.Context, ans *domain.Answer) (bool, error) {
	row := &answerRow{
		ParticipantID:    ans.ParticipantID,
		QuestionIndex:    ans.QuestionIndex,
		QuestionText:     ans.QuestionText,
		GivenAnswer:      ans.GivenAnswer,
		CorrectAnswer:    ans.CorrectAnswer,
		Correct:          ans.Correct,
		TimeTakenSeconds: ans.TimeTakenSeconds,
		AnsweredAt:       ans.AnsweredAt,
	}
	res, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (participant_id, question_index) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert answer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert answer: %w", err)
	}
	return affected == 1, nil
}

func (r *AnswerRepo) ListForParticipants(ctx context.Context, participantIDs []string) ([]domain.Answer, error) {
	if len(participantIDs) == 0 {
		return nil, nil
	}
	var rows []answerRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("a.participant_id IN (?)", bun.In(participantIDs)).
		OrderExpr("a.answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(rows))
	for i := range rows {
		answers = append(answers, rows[i].toDomain())
	}
	return answers, nil
}

func (r *AnswerRepo) CountForQuestion(ctx context.Context, participantIDs []string, index int) (correct, total int, err error) {
	if len(participantIDs) == 0 {
		return 0, 0, nil
	}
	err = r.db.NewSelect().
		Model((*answerRow)(nil)).
		ColumnExpr("count(*) FILTER (WHERE is_correct)").
		ColumnExpr("count(*)").
		Where("a.participant_id IN (?)", bun.In(participantIDs)).
		Where("a.question_index = ?", index).
		Scan(ctx, &correct, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count answers: %w", err)
	}
	return correct, total, nil
}
