package domain

import "time"

// QuizType distinguishes procedurally generated quizzes from stored question sets.
type QuizType string

const (
	QuizProcedural QuizType = "procedural"
	QuizFixedSet   QuizType = "fixed-set"
)

// Subtype selects the generator for procedural quizzes.
type Subtype string

const (
	SubtypeAdditionSingle Subtype = "addition_single"
	SubtypeAdditionDouble Subtype = "addition_double"
	// Declared for compatibility; no generator exists for these yet.
	SubtypeFractions Subtype = "fractions"
	SubtypeAngles    Subtype = "angles"
)

// Mode controls who drives question progression in a room.
type Mode string

const (
	// ModeAutomatic lets each student advance independently after answering.
	ModeAutomatic Mode = "automatic"
	// ModeManual has the teacher step the whole class through questions.
	ModeManual Mode = "manual"
)

// Quiz is a named question source. Immutable after creation.
type Quiz struct {
	ID            string
	Title         string
	Type          QuizType
	Subtype       Subtype // procedural only
	QuestionCount int     // procedural only
	Questions     []FixedQuestion
}

// FixedQuestion is one stored question of a fixed-set quiz, in authored order.
type FixedQuestion struct {
	Text          string
	CorrectAnswer string
	WrongAnswers  []string
	OrderIndex    int
}

// Question is one item of a room-run's materialized question list.
// Answers holds the display order, shuffled once per run; every client that
// renders this index sees the same order.
type Question struct {
	Text          string   `json:"text"`
	CorrectAnswer string   `json:"correctAnswer"`
	Answers       []string `json:"answers"`
}

// Participant is one student's membership in one room.
type Participant struct {
	ID          string
	RoomID      string
	DisplayName string
	JoinedAt    time.Time
	FinishedAt  *time.Time
}

// Finished reports whether the participant has completed the quiz.
func (p Participant) Finished() bool {
	return p.FinishedAt != nil
}

// Answer is one participant's response to one question index. At most one
// answer exists per (participant, index); the ledger keeps the first.
type Answer struct {
	ParticipantID    string
	QuestionIndex    int
	QuestionText     string
	GivenAnswer      string // empty means no answer / time expired
	CorrectAnswer    string
	Correct          bool
	TimeTakenSeconds int
	AnsweredAt       time.Time
}
