package domain

import "time"

// Phase is the explicit session state of a room. The loose pair of
// (nullable index, show_results flag) is intentionally not representable:
// every combination the machine can reach has exactly one phase.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseQuestionActive Phase = "question_active"
	PhaseResultsShown   Phase = "results_shown"
	PhaseEnded          Phase = "ended"
)

// Room is one live quiz session, identified externally by a short join code.
// In manual mode the teacher drives Phase/QuestionIndex; in automatic mode
// the room row is never index-mutated and progression is per-student.
type Room struct {
	ID                 string
	Code               string
	TeacherID          string
	QuizID             string
	Mode               Mode
	TimeLimitSeconds   int // 0 means no per-question limit
	RandomizeQuestions bool
	RandomizeAnswers   bool

	Phase             Phase
	QuestionIndex     int // valid in PhaseQuestionActive and PhaseResultsShown
	QuestionStartedAt time.Time

	Active    bool
	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
}

// ShowResults reports whether the room is currently revealing results.
func (r *Room) ShowResults() bool {
	return r.Phase == PhaseResultsShown
}

// Start moves Idle -> QuestionActive(0). Teacher-only, manual mode only.
func (r *Room) Start(now time.Time) error {
	if err := r.manualTransition(); err != nil {
		return err
	}
	if r.Phase != PhaseIdle {
		return ErrAlreadyStarted
	}
	r.Phase = PhaseQuestionActive
	r.QuestionIndex = 0
	r.QuestionStartedAt = now
	r.StartedAt = now
	return nil
}

// Advance moves QuestionActive(i) or ResultsShown(i) -> QuestionActive(i+1).
// Advancing past the last question is rejected with ErrLastQuestion and
// leaves the room unchanged.
func (r *Room) Advance(now time.Time, totalQuestions int) error {
	if err := r.manualTransition(); err != nil {
		return err
	}
	if r.Phase != PhaseQuestionActive && r.Phase != PhaseResultsShown {
		return ErrNotStarted
	}
	if r.QuestionIndex+1 >= totalQuestions {
		return ErrLastQuestion
	}
	r.Phase = PhaseQuestionActive
	r.QuestionIndex++
	r.QuestionStartedAt = now
	return nil
}

// Reveal moves QuestionActive(i) -> ResultsShown(i). Idempotent if already shown.
func (r *Room) Reveal() error {
	if err := r.manualTransition(); err != nil {
		return err
	}
	switch r.Phase {
	case PhaseResultsShown:
		return nil
	case PhaseQuestionActive:
		r.Phase = PhaseResultsShown
		return nil
	default:
		return ErrNotStarted
	}
}

// Hide moves ResultsShown(i) -> QuestionActive(i).
func (r *Room) Hide() error {
	if err := r.manualTransition(); err != nil {
		return err
	}
	if r.Phase != PhaseResultsShown {
		return ErrResultsHidden
	}
	r.Phase = PhaseQuestionActive
	return nil
}

// End moves any live phase -> Ended. Irreversible; applies to both modes.
func (r *Room) End(now time.Time) error {
	if r.Phase == PhaseEnded {
		return ErrRoomClosed
	}
	r.Phase = PhaseEnded
	r.Active = false
	r.EndedAt = now
	return nil
}

func (r *Room) manualTransition() error {
	if r.Phase == PhaseEnded {
		return ErrRoomClosed
	}
	if r.Mode != ModeManual {
		return ErrManualOnly
	}
	return nil
}
