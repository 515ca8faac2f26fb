package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/quizgen"
)

const codeAllocationAttempts = 5

// RoomRepository stores rooms. Create must reject a code already held by a
// currently-active room with domain.ErrCodeConflict.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (domain.Room, error)
	GetByCode(ctx context.Context, code string) (domain.Room, error)
	Update(ctx context.Context, room *domain.Room) error
}

// ParticipantRepository stores room membership, ordered by join time.
type ParticipantRepository interface {
	Add(ctx context.Context, p *domain.Participant) error
	Get(ctx context.Context, id string) (domain.Participant, error)
	MarkFinished(ctx context.Context, id string, at time.Time) error
	ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error)
}

// AnswerRepository is the write-once answer ledger. Insert reports false when
// an answer for (participant, index) already exists; the first answer is kept.
type AnswerRepository interface {
	Insert(ctx context.Context, ans *domain.Answer) (bool, error)
	ListForParticipants(ctx context.Context, participantIDs []string) ([]domain.Answer, error)
	CountForQuestion(ctx context.Context, participantIDs []string, index int) (correct, total int, err error)
}

// QuizRepository loads quiz content.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// RunRepository holds the materialized question list of a room-run. The list
// is built at most once per run and shared by every client and instance, so
// all participants see the same item at a given index.
type RunRepository interface {
	GetOrCreate(ctx context.Context, roomID string, build func(context.Context) ([]domain.Question, error)) ([]domain.Question, error)
}

// EventFeed fans room change notifications out to subscribers.
type EventFeed interface {
	Publish(ctx context.Context, roomID string, ev Event) error
	Subscribe(ctx context.Context, roomID string) (<-chan Event, func(), error)
}

// RoomService owns the room session use cases: creation, joining, the manual
// mode transitions, the answer ledger and result reads.
type RoomService struct {
	rooms        RoomRepository
	participants ParticipantRepository
	answers      AnswerRepository
	quizzes      QuizRepository
	runs         RunRepository
	feed         EventFeed

	now     func() time.Time
	newCode func() string
}

func NewRoomService(rooms RoomRepository, participants ParticipantRepository, answers AnswerRepository, quizzes QuizRepository, runs RunRepository, feed EventFeed) *RoomService {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &RoomService{
		rooms:        rooms,
		participants: participants,
		answers:      answers,
		quizzes:      quizzes,
		runs:         runs,
		feed:         feed,
		now:          time.Now,
		newCode:      func() string { return fmt.Sprintf("%06d", rnd.Intn(900000)+100000) },
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *RoomService) WithClock(now func() time.Time) *RoomService {
	s.now = now
	return s
}

// WithCodeSource is test-only for deterministic room codes.
func (s *RoomService) WithCodeSource(newCode func() string) *RoomService {
	s.newCode = newCode
	return s
}

// CreateRoomParams configures a new room.
type CreateRoomParams struct {
	TeacherID          string
	QuizID             string
	Mode               domain.Mode
	TimeLimitSeconds   int
	RandomizeQuestions bool
	RandomizeAnswers   bool
}

// CreateRoom opens a room with a fresh 6-digit join code. Collisions with a
// currently-active room are retried a bounded number of times.
func (s *RoomService) CreateRoom(ctx context.Context, p CreateRoomParams) (domain.Room, error) {
	if _, err := s.quizzes.GetQuiz(ctx, p.QuizID); err != nil {
		return domain.Room{}, err
	}
	mode := p.Mode
	if mode == "" {
		mode = domain.ModeAutomatic
	}
	if mode != domain.ModeAutomatic && mode != domain.ModeManual {
		return domain.Room{}, fmt.Errorf("unknown question mode %q", mode)
	}

	for attempt := 0; attempt < codeAllocationAttempts; attempt++ {
		room := domain.Room{
			ID:                 uuid.NewString(),
			Code:               s.newCode(),
			TeacherID:          p.TeacherID,
			QuizID:             p.QuizID,
			Mode:               mode,
			TimeLimitSeconds:   p.TimeLimitSeconds,
			RandomizeQuestions: p.RandomizeQuestions,
			RandomizeAnswers:   p.RandomizeAnswers,
			Phase:              domain.PhaseIdle,
			QuestionIndex:      -1,
			Active:             true,
			CreatedAt:          s.now(),
		}
		err := s.rooms.Create(ctx, &room)
		if errors.Is(err, domain.ErrCodeConflict) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		return room, nil
	}
	return domain.Room{}, domain.ErrCodeExhausted
}

// JoinRoom registers a student in an active room. Display names are not
// deduplicated; two students may share one.
func (s *RoomService) JoinRoom(ctx context.Context, code, displayName string) (domain.Participant, RoomSnapshot, error) {
	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, RoomSnapshot{}, err
	}
	if !room.Active {
		return domain.Participant{}, RoomSnapshot{}, domain.ErrRoomNotFound
	}

	participant := domain.Participant{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		DisplayName: displayName,
		JoinedAt:    s.now(),
	}
	if err := s.participants.Add(ctx, &participant); err != nil {
		return domain.Participant{}, RoomSnapshot{}, err
	}

	snap, err := s.snapshot(ctx, &room)
	if err != nil {
		return domain.Participant{}, RoomSnapshot{}, err
	}
	s.publishParticipants(ctx, snap)
	return participant, snap, nil
}

// StartQuestions begins the first question of a manual-mode room.
func (s *RoomService) StartQuestions(ctx context.Context, code, teacherID string) (RoomSnapshot, error) {
	return s.transition(ctx, code, teacherID, func(room *domain.Room, total int) error {
		return room.Start(s.now())
	})
}

// AdvanceQuestion moves a manual-mode room to the next question. Advancing
// past the last question returns domain.ErrLastQuestion with state unchanged.
func (s *RoomService) AdvanceQuestion(ctx context.Context, code, teacherID string) (RoomSnapshot, error) {
	return s.transition(ctx, code, teacherID, func(room *domain.Room, total int) error {
		return room.Advance(s.now(), total)
	})
}

// RevealResults shows per-question results to the class. Idempotent.
func (s *RoomService) RevealResults(ctx context.Context, code, teacherID string) (RoomSnapshot, error) {
	return s.transition(ctx, code, teacherID, func(room *domain.Room, total int) error {
		return room.Reveal()
	})
}

// HideResults returns from the results view to the active question.
func (s *RoomService) HideResults(ctx context.Context, code, teacherID string) (RoomSnapshot, error) {
	return s.transition(ctx, code, teacherID, func(room *domain.Room, total int) error {
		return room.Hide()
	})
}

// EndRoom closes the room irreversibly. Subsequent student mutations fail
// with domain.ErrRoomClosed.
func (s *RoomService) EndRoom(ctx context.Context, code, teacherID string) (RoomSnapshot, error) {
	return s.transition(ctx, code, teacherID, func(room *domain.Room, total int) error {
		return room.End(s.now())
	})
}

func (s *RoomService) transition(ctx context.Context, code, teacherID string, apply func(*domain.Room, int) error) (RoomSnapshot, error) {
	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return RoomSnapshot{}, err
	}
	if room.TeacherID != teacherID {
		return RoomSnapshot{}, domain.ErrNotRoomOwner
	}

	questions, err := s.runQuestions(ctx, &room)
	if err != nil {
		return RoomSnapshot{}, err
	}
	if err := apply(&room, len(questions)); err != nil {
		snap, snapErr := s.snapshot(ctx, &room)
		if snapErr != nil {
			return RoomSnapshot{}, err
		}
		return snap, err
	}
	if err := s.rooms.Update(ctx, &room); err != nil {
		return RoomSnapshot{}, err
	}

	snap, err := s.snapshot(ctx, &room)
	if err != nil {
		return RoomSnapshot{}, err
	}
	kind := EventRoom
	if room.Phase == domain.PhaseEnded {
		kind = EventEnded
	}
	if err := s.feed.Publish(ctx, room.ID, Event{Kind: kind, Room: snap}); err != nil {
		log.Printf("publish room event: %v", err)
	}
	return snap, nil
}

// SubmitAnswer records one answer in the ledger. The index is part of the
// key: a submission against a since-superseded index is still accepted and
// scored as shown to the student. A duplicate (participant, index) pair is
// ignored and reported via the returned bool; the first answer stands.
func (s *RoomService) SubmitAnswer(ctx context.Context, participantID string, index int, given string, timeTakenSeconds int) (domain.Answer, bool, error) {
	participant, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return domain.Answer{}, false, err
	}
	room, err := s.rooms.Get(ctx, participant.RoomID)
	if err != nil {
		return domain.Answer{}, false, err
	}
	if !room.Active {
		return domain.Answer{}, false, domain.ErrRoomClosed
	}

	questions, err := s.runQuestions(ctx, &room)
	if err != nil {
		return domain.Answer{}, false, err
	}
	if index < 0 || index >= len(questions) {
		return domain.Answer{}, false, domain.ErrQuestionOutOfRange
	}
	question := questions[index]

	answer := domain.Answer{
		ParticipantID:    participantID,
		QuestionIndex:    index,
		QuestionText:     question.Text,
		GivenAnswer:      given,
		CorrectAnswer:    question.CorrectAnswer,
		Correct:          given == question.CorrectAnswer,
		TimeTakenSeconds: timeTakenSeconds,
		AnsweredAt:       s.now(),
	}
	inserted, err := s.answers.Insert(ctx, &answer)
	if err != nil {
		return domain.Answer{}, false, err
	}
	return answer, inserted, nil
}

// Finish marks a participant done. Calling it again is a no-op.
func (s *RoomService) Finish(ctx context.Context, participantID string) error {
	participant, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return err
	}
	room, err := s.rooms.Get(ctx, participant.RoomID)
	if err != nil {
		return err
	}
	if !room.Active {
		return domain.ErrRoomClosed
	}
	if err := s.participants.MarkFinished(ctx, participantID, s.now()); err != nil {
		return err
	}
	snap, err := s.snapshot(ctx, &room)
	if err != nil {
		return err
	}
	s.publishParticipants(ctx, snap)
	return nil
}

// QuestionTally returns how many of a room's submissions for one question
// index were correct, for the reveal view.
func (s *RoomService) QuestionTally(ctx context.Context, roomID string, index int) (correct, total int, err error) {
	parts, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return 0, 0, err
	}
	return s.answers.CountForQuestion(ctx, participantIDs(parts), index)
}

// ParticipantScore returns a participant's correct and answered counts.
func (s *RoomService) ParticipantScore(ctx context.Context, participantID string) (score, answered int, err error) {
	answers, err := s.answers.ListForParticipants(ctx, []string{participantID})
	if err != nil {
		return 0, 0, err
	}
	for _, a := range answers {
		answered++
		if a.Correct {
			score++
		}
	}
	return score, answered, nil
}

// RunQuestions returns the room-run's materialized question list.
func (s *RoomService) RunQuestions(ctx context.Context, code string) (RoomSnapshot, []domain.Question, error) {
	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return RoomSnapshot{}, nil, err
	}
	questions, err := s.runQuestions(ctx, &room)
	if err != nil {
		return RoomSnapshot{}, nil, err
	}
	snap := s.snapshotWithTotal(&room, len(questions))
	return snap, questions, nil
}

// Subscribe delivers a full current snapshot first, then incremental change
// events. Reconnecting clients simply resubscribe; there is no gap-filling
// from missed events.
func (s *RoomService) Subscribe(ctx context.Context, code string) (<-chan Event, func(), error) {
	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	snap, err := s.snapshot(ctx, &room)
	if err != nil {
		return nil, nil, err
	}
	parts, err := s.participants.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, nil, err
	}
	views, finished := participantViews(parts)

	feedCh, cancel, err := s.feed.Subscribe(ctx, room.ID)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Event, 8)
	out <- Event{Kind: EventRoom, Room: snap, Participants: views, FinishedCount: finished}

	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			cancel()
			close(done)
		})
	}
	// Forward until the feed closes or the subscription is cancelled; the
	// done channel keeps a send to an abandoned subscriber from blocking
	// this goroutine forever.
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-feedCh:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()
	return out, stop, nil
}

func (s *RoomService) publishParticipants(ctx context.Context, snap RoomSnapshot) {
	parts, err := s.participants.ListByRoom(ctx, snap.ID)
	if err != nil {
		log.Printf("list participants for event: %v", err)
		return
	}
	views, finished := participantViews(parts)
	ev := Event{Kind: EventParticipants, Room: snap, Participants: views, FinishedCount: finished}
	if err := s.feed.Publish(ctx, snap.ID, ev); err != nil {
		log.Printf("publish participants event: %v", err)
	}
}

func (s *RoomService) snapshot(ctx context.Context, room *domain.Room) (RoomSnapshot, error) {
	questions, err := s.runQuestions(ctx, room)
	if err != nil {
		return RoomSnapshot{}, err
	}
	return s.snapshotWithTotal(room, len(questions)), nil
}

func (s *RoomService) snapshotWithTotal(room *domain.Room, total int) RoomSnapshot {
	return RoomSnapshot{
		ID:                room.ID,
		Code:              room.Code,
		QuizID:            room.QuizID,
		Mode:              room.Mode,
		Phase:             room.Phase,
		QuestionIndex:     room.QuestionIndex,
		ShowResults:       room.ShowResults(),
		TimeLimitSeconds:  room.TimeLimitSeconds,
		TotalQuestions:    total,
		Active:            room.Active,
		QuestionStartedAt: room.QuestionStartedAt,
	}
}

// runQuestions materializes the room-run question list exactly once per run:
// generation, answer-order shuffling and question-order shuffling all happen
// here and nowhere else, so the run is stable for its lifetime.
func (s *RoomService) runQuestions(ctx context.Context, room *domain.Room) ([]domain.Question, error) {
	return s.runs.GetOrCreate(ctx, room.ID, func(ctx context.Context) ([]domain.Question, error) {
		quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
		if err != nil {
			return nil, err
		}
		gen := quizgen.New()

		var questions []domain.Question
		switch quiz.Type {
		case domain.QuizProcedural:
			count := quiz.QuestionCount
			if count <= 0 {
				count = 10
			}
			generated, err := gen.Generate(quiz.Subtype, count)
			if err != nil {
				return nil, err
			}
			for _, q := range generated {
				questions = append(questions, domain.Question{
					Text:          q.Text,
					CorrectAnswer: q.CorrectAnswer,
					Answers:       gen.ShuffleAnswers(q.CorrectAnswer, q.WrongAnswers),
				})
			}
		case domain.QuizFixedSet:
			fixed := append([]domain.FixedQuestion(nil), quiz.Questions...)
			sort.SliceStable(fixed, func(i, j int) bool { return fixed[i].OrderIndex < fixed[j].OrderIndex })
			for _, fq := range fixed {
				answers := make([]string, 0, len(fq.WrongAnswers)+1)
				if room.RandomizeAnswers {
					answers = gen.ShuffleAnswers(fq.CorrectAnswer, fq.WrongAnswers)
				} else {
					answers = append(answers, fq.CorrectAnswer)
					answers = append(answers, fq.WrongAnswers...)
				}
				questions = append(questions, domain.Question{
					Text:          fq.Text,
					CorrectAnswer: fq.CorrectAnswer,
					Answers:       answers,
				})
			}
		default:
			return nil, fmt.Errorf("unknown quiz type %q", quiz.Type)
		}

		if room.RandomizeQuestions {
			gen.ShuffleQuestions(questions)
		}
		if len(questions) == 0 {
			return nil, domain.ErrNoQuestions
		}
		return questions, nil
	})
}

func participantIDs(parts []domain.Participant) []string {
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ID)
	}
	return ids
}
