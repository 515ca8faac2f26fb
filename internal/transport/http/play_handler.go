package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

type joinedPayload struct {
	ParticipantID string           `json:"participantId"`
	Room          app.RoomSnapshot `json:"room"`
}

// ServePlay is the student connection. The student joins with the room code
// and a display name; the progression model then depends on the room's mode.
// In automatic mode the server drives the student through the question list
// at the student's own pace, enforcing the per-question timer. In manual mode
// the connection follows the teacher's room transitions.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	name := r.URL.Query().Get("name")
	if code == "" || name == "" {
		http.Error(w, "missing code or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	participant, snap, err := h.service.JoinRoom(ctx, code, name)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	_, questions, err := h.service.RunQuestions(ctx, code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	go writeLoop(conn, send, writerDone)

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{ParticipantID: participant.ID, Room: snap}}

	session := &playSession{
		handler:       h,
		conn:          conn,
		send:          send,
		participantID: participant.ID,
		snap:          snap,
		questions:     questions,
	}
	if snap.Mode == domain.ModeAutomatic {
		session.runAutomatic(ctx, code)
	} else {
		session.runManual(ctx, code)
	}

	close(send)
	<-writerDone
}

// playSession is the per-connection student state.
type playSession struct {
	handler       *WSHandler
	conn          *websocket.Conn
	send          chan outboundMessage[any]
	participantID string
	snap          app.RoomSnapshot
	questions     []domain.Question
}

// readAnswers pumps inbound answer submissions into a channel so the play
// loops can select over them alongside timers and room events. It stops when
// the connection is closed or done is signalled.
func (s *playSession) readAnswers(done <-chan struct{}) <-chan answerPayload {
	answers := make(chan answerPayload)
	go func() {
		defer close(answers)
		for {
			var inbound inboundMessage
			if err := s.conn.ReadJSON(&inbound); err != nil {
				return
			}
			if inbound.Type != "answer" {
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				continue
			}
			select {
			case answers <- payload:
			case <-done:
				return
			}
		}
	}()
	return answers
}

func (s *playSession) sendQuestion(index int) {
	q := s.questions[index]
	s.send <- outboundMessage[any]{Type: "question", Payload: questionPayload{
		Index:            index,
		Text:             q.Text,
		Answers:          q.Answers,
		TimeLimitSeconds: s.snap.TimeLimitSeconds,
		TotalQuestions:   len(s.questions),
	}}
}

// submit records one answer and reports the outcome to the student. Ledger
// conflicts and a closed room are not connection errors.
func (s *playSession) submit(ctx context.Context, index int, given string, taken int) bool {
	answer, inserted, err := s.handler.service.SubmitAnswer(ctx, s.participantID, index, given, taken)
	if err != nil {
		s.send <- commandFailure(err)
		return false
	}
	s.send <- outboundMessage[any]{Type: "answerResult", Payload: answerResultPayload{
		Index:         index,
		Correct:       answer.Correct,
		CorrectAnswer: answer.CorrectAnswer,
		Duplicate:     !inserted,
	}}
	return true
}

func (s *playSession) finish(ctx context.Context) {
	if err := s.handler.service.Finish(ctx, s.participantID); err != nil {
		log.Printf("finish participant %s: %v", s.participantID, err)
	}
	score, answered, err := s.handler.service.ParticipantScore(ctx, s.participantID)
	if err != nil {
		log.Printf("score participant %s: %v", s.participantID, err)
		return
	}
	percentage := 0
	if answered > 0 {
		percentage = int(float64(score)/float64(answered)*100 + 0.5)
	}
	s.send <- outboundMessage[any]{Type: "finished", Payload: finishedPayload{
		Score:      score,
		Answered:   answered,
		Percentage: percentage,
	}}
}

// runAutomatic walks the student through every question in run order. Each
// question is open until the student answers or the time limit expires; an
// expired question is recorded as an empty, wrong answer. The room event feed
// is watched only for the end of the room; progression never touches the
// room row.
func (s *playSession) runAutomatic(ctx context.Context, code string) {
	events, cancel, err := s.handler.service.Subscribe(ctx, code)
	if err != nil {
		s.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	answers := s.readAnswers(done)

	for index := range s.questions {
		s.sendQuestion(index)
		started := time.Now()

		var timeout <-chan time.Time
		stop := func() {}
		if s.snap.TimeLimitSeconds > 0 {
			timeout, stop = s.handler.newTimer(time.Duration(s.snap.TimeLimitSeconds) * time.Second)
		}

		answered := false
		for !answered {
			select {
			case payload, ok := <-answers:
				if !ok {
					stop()
					return
				}
				if payload.Index != index {
					continue
				}
				taken := int(time.Since(started) / time.Second)
				if !s.submit(ctx, index, payload.Answer, taken) {
					stop()
					return
				}
				answered = true
			case <-timeout:
				if !s.submit(ctx, index, "", s.snap.TimeLimitSeconds) {
					return
				}
				answered = true
			case ev, ok := <-events:
				if !ok {
					stop()
					return
				}
				if ev.Kind == app.EventEnded {
					s.send <- outboundMessage[any]{Type: "ended", Payload: ev.Room}
					stop()
					return
				}
			case <-ctx.Done():
				stop()
				return
			}
		}
		stop()
	}
	s.finish(ctx)

	// Stay connected until the student leaves or the teacher ends the room.
	for {
		select {
		case _, ok := <-answers:
			if !ok {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == app.EventEnded {
				s.send <- outboundMessage[any]{Type: "ended", Payload: ev.Room}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// runManual mirrors the teacher's transitions: it shows whatever question the
// room currently points at, switches to the class tally on reveal and back on
// hide, and closes out when the room ends. All participants see the same
// question at the same time.
func (s *playSession) runManual(ctx context.Context, code string) {
	events, cancel, err := s.handler.service.Subscribe(ctx, code)
	if err != nil {
		s.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	answers := s.readAnswers(done)

	current := -1
	answeredCurrent := false
	finished := false
	var started time.Time
	var timeout <-chan time.Time
	stop := func() {}

	present := func(index int) {
		current = index
		answeredCurrent = false
		started = time.Now()
		stop()
		timeout = nil
		if s.snap.TimeLimitSeconds > 0 {
			timeout, stop = s.handler.newTimer(time.Duration(s.snap.TimeLimitSeconds) * time.Second)
		}
		s.sendQuestion(index)
	}
	defer func() { stop() }()

	settle := func(index int, given string, taken int) bool {
		if !s.submit(ctx, index, given, taken) {
			return false
		}
		if index == current {
			answeredCurrent = true
			timeout = nil
		}
		if current == len(s.questions)-1 && !finished {
			finished = true
			s.finish(ctx)
		}
		return true
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == app.EventEnded {
				s.send <- outboundMessage[any]{Type: "ended", Payload: ev.Room}
				return
			}
			room := ev.Room
			switch {
			case room.Phase == domain.PhaseQuestionActive && room.QuestionIndex != current:
				present(room.QuestionIndex)
			case room.Phase == domain.PhaseQuestionActive && room.QuestionIndex == current && current >= 0 && ev.Kind == app.EventRoom:
				// Results were hidden: back to the question view. The clock,
				// answered flag and start time carry over from the original
				// presentation.
				s.sendQuestion(current)
			case room.Phase == domain.PhaseResultsShown:
				correct, total, err := s.handler.service.QuestionTally(ctx, room.ID, room.QuestionIndex)
				if err != nil {
					log.Printf("question tally: %v", err)
					continue
				}
				s.send <- outboundMessage[any]{Type: "results", Payload: tallyPayload{
					Index:   room.QuestionIndex,
					Correct: correct,
					Total:   total,
				}}
			}
		case payload, ok := <-answers:
			if !ok {
				return
			}
			if payload.Index == current && answeredCurrent {
				continue
			}
			taken := int(time.Since(started) / time.Second)
			if !settle(payload.Index, payload.Answer, taken) {
				return
			}
		case <-timeout:
			if answeredCurrent {
				continue
			}
			if !settle(current, "", s.snap.TimeLimitSeconds) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
