package app_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

type fixture struct {
	service *app.RoomService
}

// fakeClock hands out strictly increasing timestamps so join order and
// question timing are deterministic.
func fakeClock() func() time.Time {
	base := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	calls := 0
	return func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
}

func fixedQuiz(id string, questions int) domain.Quiz {
	quiz := domain.Quiz{ID: id, Title: "Math check", Type: domain.QuizFixedSet}
	for i := 0; i < questions; i++ {
		quiz.Questions = append(quiz.Questions, domain.FixedQuestion{
			Text:          fmt.Sprintf("question %d", i),
			CorrectAnswer: fmt.Sprintf("right-%d", i),
			WrongAnswers:  []string{"wrong-a", "wrong-b", "wrong-c"},
			OrderIndex:    i,
		})
	}
	return quiz
}

func newFixture(quizzes ...domain.Quiz) *fixture {
	byID := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		byID[q.ID] = q
	}
	service := app.NewRoomService(
		memory.NewRoomStore(),
		memory.NewParticipantStore(),
		memory.NewAnswerStore(),
		memory.NewQuizStore(byID),
		memory.NewRunStore(),
		memory.NewBroadcaster(),
	).WithClock(fakeClock())
	return &fixture{service: service}
}

func (f *fixture) createRoom(t *testing.T, p app.CreateRoomParams) domain.Room {
	t.Helper()
	room, err := f.service.CreateRoom(context.Background(), p)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func (f *fixture) join(t *testing.T, code, name string) domain.Participant {
	t.Helper()
	participant, _, err := f.service.JoinRoom(context.Background(), code, name)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return participant
}

func TestManualRoomScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 3))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeManual})

	alice := f.join(t, room.Code, "Alice")
	bob := f.join(t, room.Code, "Bob")

	snap, err := f.service.StartQuestions(ctx, room.Code, "t1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.QuestionIndex != 0 || snap.Phase != domain.PhaseQuestionActive || snap.TotalQuestions != 3 {
		t.Fatalf("unexpected snapshot after start: %+v", snap)
	}

	if _, _, err := f.service.SubmitAnswer(ctx, alice.ID, 0, "right-0", 4); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	if _, _, err := f.service.SubmitAnswer(ctx, bob.ID, 0, "wrong-a", 6); err != nil {
		t.Fatalf("bob answer: %v", err)
	}

	snap, err = f.service.RevealResults(ctx, room.Code, "t1")
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if !snap.ShowResults {
		t.Fatalf("expected show_results after reveal")
	}
	correct, total, err := f.service.QuestionTally(ctx, room.ID, 0)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if correct != 1 || total != 2 {
		t.Fatalf("expected 1/2 correct, got %d/%d", correct, total)
	}

	snap, err = f.service.AdvanceQuestion(ctx, room.Code, "t1")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if snap.QuestionIndex != 1 || snap.ShowResults {
		t.Fatalf("expected question 1 with results reset, got %+v", snap)
	}
}

func TestAdvanceAtLastQuestionIsANoticeNotAMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 2))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeManual})

	if _, err := f.service.StartQuestions(ctx, room.Code, "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.AdvanceQuestion(ctx, room.Code, "t1"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	snap, err := f.service.AdvanceQuestion(ctx, room.Code, "t1")
	if !errors.Is(err, domain.ErrLastQuestion) {
		t.Fatalf("expected ErrLastQuestion, got %v", err)
	}
	if snap.QuestionIndex != 1 {
		t.Fatalf("rejected advance must not move the index, got %d", snap.QuestionIndex)
	}
}

func TestDuplicateSubmissionKeepsFirstAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 1))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeAutomatic})
	alice := f.join(t, room.Code, "Alice")

	if _, inserted, err := f.service.SubmitAnswer(ctx, alice.ID, 0, "right-0", 3); err != nil || !inserted {
		t.Fatalf("first submission: inserted=%v err=%v", inserted, err)
	}
	// A client retry must not double-count.
	if _, inserted, err := f.service.SubmitAnswer(ctx, alice.ID, 0, "wrong-a", 5); err != nil {
		t.Fatalf("retry submission: %v", err)
	} else if inserted {
		t.Fatalf("expected duplicate submission to be ignored")
	}

	score, answered, err := f.service.ParticipantScore(ctx, alice.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 1 || answered != 1 {
		t.Fatalf("expected 1/1 after duplicate, got %d/%d", score, answered)
	}
}

func TestCorrectnessIsRawStringEquality(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 1))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeAutomatic})
	alice := f.join(t, room.Code, "Alice")

	// Whitespace and case differences count as wrong; scoring semantics are
	// exact equality on purpose.
	ans, _, err := f.service.SubmitAnswer(ctx, alice.ID, 0, " right-0", 2)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ans.Correct {
		t.Fatalf("expected padded answer to score as wrong")
	}
}

func TestTimeExpiredAnswerIsRecordedEmptyAndWrong(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 1))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeAutomatic, TimeLimitSeconds: 15})
	alice := f.join(t, room.Code, "Alice")

	ans, inserted, err := f.service.SubmitAnswer(ctx, alice.ID, 0, "", 15)
	if err != nil || !inserted {
		t.Fatalf("submit empty: inserted=%v err=%v", inserted, err)
	}
	if ans.GivenAnswer != "" || ans.Correct {
		t.Fatalf("expected empty incorrect answer, got %+v", ans)
	}
}

func TestStaleIndexSubmissionIsAcceptedAsShown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 3))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeManual})
	alice := f.join(t, room.Code, "Alice")

	_, _ = f.service.StartQuestions(ctx, room.Code, "t1")
	_, _ = f.service.AdvanceQuestion(ctx, room.Code, "t1")

	// Alice still submits against question 0 after the teacher moved on.
	ans, inserted, err := f.service.SubmitAnswer(ctx, alice.ID, 0, "right-0", 9)
	if err != nil || !inserted {
		t.Fatalf("stale submit: inserted=%v err=%v", inserted, err)
	}
	if ans.QuestionIndex != 0 || !ans.Correct {
		t.Fatalf("expected answer scored against index 0, got %+v", ans)
	}

	if _, _, err := f.service.SubmitAnswer(ctx, alice.ID, 7, "x", 1); !errors.Is(err, domain.ErrQuestionOutOfRange) {
		t.Fatalf("expected ErrQuestionOutOfRange, got %v", err)
	}
}

func TestEndedRoomRejectsStudentMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 2))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeAutomatic})
	alice := f.join(t, room.Code, "Alice")

	snap, err := f.service.EndRoom(ctx, room.Code, "t1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if snap.Active || snap.Phase != domain.PhaseEnded {
		t.Fatalf("expected ended snapshot, got %+v", snap)
	}

	if _, _, err := f.service.SubmitAnswer(ctx, alice.ID, 0, "right-0", 2); !errors.Is(err, domain.ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed on submit, got %v", err)
	}
	if err := f.service.Finish(ctx, alice.ID); !errors.Is(err, domain.ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed on finish, got %v", err)
	}
	if _, _, err := f.service.JoinRoom(ctx, room.Code, "Late"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound joining ended room, got %v", err)
	}
}

func TestControlRequiresRoomOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 2))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeManual})

	if _, err := f.service.StartQuestions(ctx, room.Code, "someone-else"); !errors.Is(err, domain.ErrNotRoomOwner) {
		t.Fatalf("expected ErrNotRoomOwner, got %v", err)
	}
}

func TestRoomCodeCollisionRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 1))
	f.service.WithCodeSource(func() string { return "111111" })

	first := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeAutomatic})
	if first.Code != "111111" {
		t.Fatalf("expected stubbed code, got %s", first.Code)
	}

	// Every retry draws the same code while the first room is still active.
	if _, err := f.service.CreateRoom(ctx, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1"}); !errors.Is(err, domain.ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}

	// Once the room ends, its code is free again.
	if _, err := f.service.EndRoom(ctx, first.Code, "t1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := f.service.CreateRoom(ctx, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1"}); err != nil {
		t.Fatalf("expected code reuse after end, got %v", err)
	}
}

func TestRunIsStableAcrossParticipants(t *testing.T) {
	ctx := context.Background()
	quiz := domain.Quiz{ID: "gen-1", Title: "Addition", Type: domain.QuizProcedural, Subtype: domain.SubtypeAdditionSingle, QuestionCount: 8}
	f := newFixture(quiz)
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "gen-1", Mode: domain.ModeManual})

	_, first, err := f.service.RunQuestions(ctx, room.Code)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	_, second, err := f.service.RunQuestions(ctx, room.Code)
	if err != nil {
		t.Fatalf("run again: %v", err)
	}
	if len(first) != 8 {
		t.Fatalf("expected 8 questions, got %d", len(first))
	}
	for i := range first {
		if first[i].Text != second[i].Text || first[i].CorrectAnswer != second[i].CorrectAnswer {
			t.Fatalf("question %d regenerated between reads", i)
		}
		if strings.Join(first[i].Answers, "|") != strings.Join(second[i].Answers, "|") {
			t.Fatalf("answer order for question %d reshuffled between reads", i)
		}
	}
}

func TestSubscribeSnapshotFirstThenEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 2))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeManual})

	events, cancel, err := f.service.Subscribe(ctx, room.Code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-events
	if initial.Kind != app.EventRoom || initial.Room.Phase != domain.PhaseIdle {
		t.Fatalf("expected idle snapshot first, got %+v", initial)
	}

	f.join(t, room.Code, "Alice")
	ev := <-events
	if ev.Kind != app.EventParticipants || len(ev.Participants) != 1 || ev.Participants[0].DisplayName != "Alice" {
		t.Fatalf("expected participants event for Alice, got %+v", ev)
	}

	if _, err := f.service.StartQuestions(ctx, room.Code, "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	ev = <-events
	if ev.Kind != app.EventRoom || ev.Room.QuestionIndex != 0 {
		t.Fatalf("expected room event for question 0, got %+v", ev)
	}

	if _, err := f.service.EndRoom(ctx, room.Code, "t1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	ev = <-events
	if ev.Kind != app.EventEnded {
		t.Fatalf("expected ended event, got %+v", ev)
	}
}

func TestLeaderboardOrderingAndExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 5))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeAutomatic})

	slow := f.join(t, room.Code, "Slow But First")
	fast := f.join(t, room.Code, "Fast Finisher")
	idle := f.join(t, room.Code, "Never Answered")

	// Slow: 3/5 correct, 90s total.
	for i := 0; i < 5; i++ {
		given := "wrong-a"
		if i < 3 {
			given = fmt.Sprintf("right-%d", i)
		}
		if _, _, err := f.service.SubmitAnswer(ctx, slow.ID, i, given, 18); err != nil {
			t.Fatalf("slow submit %d: %v", i, err)
		}
	}
	// Fast: 5/5 correct, 60s total.
	for i := 0; i < 5; i++ {
		if _, _, err := f.service.SubmitAnswer(ctx, fast.ID, i, fmt.Sprintf("right-%d", i), 12); err != nil {
			t.Fatalf("fast submit %d: %v", i, err)
		}
	}

	rows, err := f.service.Leaderboard(ctx, room.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].DisplayName != "Fast Finisher" || rows[0].Score != 5 || rows[0].Percentage != 100 {
		t.Fatalf("expected fast finisher first, got %+v", rows[0])
	}
	if rows[1].DisplayName != "Slow But First" || rows[1].Score != 3 || rows[1].Percentage != 60 || rows[1].TotalTimeSeconds != 90 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
	if rows[2].DisplayName != "Never Answered" || rows[2].Percentage != 0 || rows[2].Answered != 0 {
		t.Fatalf("zero answers must yield 0%%, got %+v", rows[2])
	}
	_ = idle

	// Recomputation keeps the order.
	again, err := f.service.Leaderboard(ctx, room.ID)
	if err != nil {
		t.Fatalf("leaderboard again: %v", err)
	}
	for i := range rows {
		if rows[i].ParticipantID != again[i].ParticipantID {
			t.Fatalf("leaderboard order changed between recomputations at %d", i)
		}
	}

	var buf bytes.Buffer
	if err := f.service.WriteResultsCSV(ctx, room.ID, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %q", buf.String())
	}
	if lines[0] != "name,score,total,percentage,total_time_seconds" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "Fast Finisher,5,5,100,60" {
		t.Fatalf("expected 5/5 participant first, got %q", lines[1])
	}
	if lines[2] != "Slow But First,3,5,60,90" {
		t.Fatalf("unexpected second line %q", lines[2])
	}
}

func TestScoreTieBreaksOnTotalTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 2))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeAutomatic})

	late := f.join(t, room.Code, "Late Joiner Quick Hands")
	early := f.join(t, room.Code, "Early Joiner")

	for i := 0; i < 2; i++ {
		if _, _, err := f.service.SubmitAnswer(ctx, early.ID, i, fmt.Sprintf("right-%d", i), 10); err != nil {
			t.Fatalf("early submit: %v", err)
		}
		if _, _, err := f.service.SubmitAnswer(ctx, late.ID, i, fmt.Sprintf("right-%d", i), 4); err != nil {
			t.Fatalf("late submit: %v", err)
		}
	}

	rows, err := f.service.Leaderboard(ctx, room.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if rows[0].DisplayName != "Late Joiner Quick Hands" {
		t.Fatalf("equal scores must rank by lower total time, got %+v", rows)
	}
}

func TestSubscribeCancelUnblocksUndrainedSubscriber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(fixedQuiz("quiz-1", 2))
	room := f.createRoom(t, app.CreateRoomParams{TeacherID: "t1", QuizID: "quiz-1", Mode: domain.ModeManual})

	events, cancel, err := f.service.Subscribe(ctx, room.Code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Never drain: enough joins to fill the subscriber buffer and leave the
	// forwarder mid-send.
	for i := 0; i < 12; i++ {
		f.join(t, room.Code, fmt.Sprintf("student-%d", i))
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("events channel still open after cancel")
		}
	}
}
