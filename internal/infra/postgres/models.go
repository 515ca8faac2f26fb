package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quizroom-service/internal/domain"
)

type roomRow struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID                 string     `bun:"id,pk"`
	Code               string     `bun:"room_code"`
	TeacherID          string     `bun:"teacher_id"`
	QuizID             string     `bun:"quiz_id"`
	Mode               string     `bun:"question_mode"`
	TimeLimitSeconds   int        `bun:"time_limit_seconds"`
	RandomizeQuestions bool       `bun:"randomize_questions"`
	RandomizeAnswers   bool       `bun:"randomize_answers"`
	Phase              string     `bun:"phase"`
	QuestionIndex      int        `bun:"current_question_index"`
	QuestionStartedAt  *time.Time `bun:"question_started_at"`
	Active             bool       `bun:"active"`
	CreatedAt          time.Time  `bun:"created_at"`
	StartedAt          *time.Time `bun:"started_at"`
	EndedAt            *time.Time `bun:"ended_at"`
}

func roomToRow(room *domain.Room) *roomRow {
	return &roomRow{
		ID:                 room.ID,
		Code:               room.Code,
		TeacherID:          room.TeacherID,
		QuizID:             room.QuizID,
		Mode:               string(room.Mode),
		TimeLimitSeconds:   room.TimeLimitSeconds,
		RandomizeQuestions: room.RandomizeQuestions,
		RandomizeAnswers:   room.RandomizeAnswers,
		Phase:              string(room.Phase),
		QuestionIndex:      room.QuestionIndex,
		QuestionStartedAt:  nullableTime(room.QuestionStartedAt),
		Active:             room.Active,
		CreatedAt:          room.CreatedAt,
		StartedAt:          nullableTime(room.StartedAt),
		EndedAt:            nullableTime(room.EndedAt),
	}
}

func (r *roomRow) toDomain() domain.Room {
	return domain.Room{
		ID:                 r.ID,
		Code:               r.Code,
		TeacherID:          r.TeacherID,
		QuizID:             r.QuizID,
		Mode:               domain.Mode(r.Mode),
		TimeLimitSeconds:   r.TimeLimitSeconds,
		RandomizeQuestions: r.RandomizeQuestions,
		RandomizeAnswers:   r.RandomizeAnswers,
		Phase:              domain.Phase(r.Phase),
		QuestionIndex:      r.QuestionIndex,
		QuestionStartedAt:  timeValue(r.QuestionStartedAt),
		Active:             r.Active,
		CreatedAt:          r.CreatedAt,
		StartedAt:          timeValue(r.StartedAt),
		EndedAt:            timeValue(r.EndedAt),
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID          string     `bun:"id,pk"`
	RoomID      string     `bun:"room_id"`
	DisplayName string     `bun:"display_name"`
	JoinedAt    time.Time  `bun:"joined_at"`
	FinishedAt  *time.Time `bun:"finished_at"`
}

func (p *participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:          p.ID,
		RoomID:      p.RoomID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
		FinishedAt:  p.FinishedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ParticipantID    string    `bun:"participant_id,pk"`
	QuestionIndex    int       `bun:"question_index,pk"`
	QuestionText     string    `bun:"question_text"`
	GivenAnswer      string    `bun:"given_answer"`
	CorrectAnswer    string    `bun:"correct_answer"`
	Correct          bool      `bun:"is_correct"`
	TimeTakenSeconds int       `bun:"time_taken_seconds"`
	AnsweredAt       time.Time `bun:"answered_at"`
}

func (a *answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ParticipantID:    a.ParticipantID,
		QuestionIndex:    a.QuestionIndex,
		QuestionText:     a.QuestionText,
		GivenAnswer:      a.GivenAnswer,
		CorrectAnswer:    a.CorrectAnswer,
		Correct:          a.Correct,
		TimeTakenSeconds: a.TimeTakenSeconds,
		AnsweredAt:       a.AnsweredAt,
	}
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
