package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// WSHandler wires websocket connections into the room use cases: /ws/play
// for students and /ws/control for the owning teacher.
type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
	newTimer func(time.Duration) (<-chan time.Time, func())
}

func NewWSHandler(service *app.RoomService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newTimer: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTimer(d)
			return t.C, func() { t.Stop() }
		},
	}
}

// WithTimer is test-only for deterministic question countdowns.
func (h *WSHandler) WithTimer(f func(time.Duration) (<-chan time.Time, func())) *WSHandler {
	h.newTimer = f
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type noticePayload struct {
	Message string `json:"message"`
}

type answerPayload struct {
	Index  int    `json:"index"`
	Answer string `json:"answer"`
}

type questionPayload struct {
	Index            int      `json:"index"`
	Text             string   `json:"text"`
	Answers          []string `json:"answers"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	TotalQuestions   int      `json:"totalQuestions"`
}

type answerResultPayload struct {
	Index         int    `json:"index"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	Duplicate     bool   `json:"duplicate"`
}

type tallyPayload struct {
	Index   int `json:"index"`
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

type finishedPayload struct {
	Score      int `json:"score"`
	Answered   int `json:"answered"`
	Percentage int `json:"percentage"`
}

type rosterPayload struct {
	Participants  []app.ParticipantView `json:"participants"`
	FinishedCount int                   `json:"finishedCount"`
}

// ServeControl is the teacher's live view: it streams roster and room
// updates and accepts the session commands start/advance/reveal/hide/end.
func (h *WSHandler) ServeControl(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	teacherID := r.URL.Query().Get("teacherId")
	if code == "" || teacherID == "" {
		http.Error(w, "missing code or teacherId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	events, cancel, err := h.service.Subscribe(ctx, code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go writeLoop(conn, send, writerDone)
	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- controlMessage(ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		var snap app.RoomSnapshot
		switch inbound.Type {
		case "start":
			snap, err = h.service.StartQuestions(ctx, code, teacherID)
		case "advance":
			snap, err = h.service.AdvanceQuestion(ctx, code, teacherID)
		case "reveal":
			snap, err = h.service.RevealResults(ctx, code, teacherID)
		case "hide":
			snap, err = h.service.HideResults(ctx, code, teacherID)
		case "end":
			snap, err = h.service.EndRoom(ctx, code, teacherID)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
			continue
		}
		if err != nil {
			send <- commandFailure(err)
			continue
		}
		send <- outboundMessage[any]{Type: "room", Payload: snap}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func writeLoop(conn *websocket.Conn, send <-chan outboundMessage[any], done chan<- struct{}) {
	defer close(done)
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

func controlMessage(ev app.Event) outboundMessage[any] {
	switch ev.Kind {
	case app.EventParticipants:
		return outboundMessage[any]{Type: "participants", Payload: rosterPayload{
			Participants:  ev.Participants,
			FinishedCount: ev.FinishedCount,
		}}
	case app.EventEnded:
		return outboundMessage[any]{Type: "ended", Payload: ev.Room}
	default:
		return outboundMessage[any]{Type: "room", Payload: ev.Room}
	}
}

// commandFailure maps illegal transitions to non-fatal notices so the teacher
// view can surface them without treating the session as broken.
func commandFailure(err error) outboundMessage[any] {
	switch {
	case errors.Is(err, domain.ErrLastQuestion),
		errors.Is(err, domain.ErrAlreadyStarted),
		errors.Is(err, domain.ErrNotStarted),
		errors.Is(err, domain.ErrResultsHidden),
		errors.Is(err, domain.ErrManualOnly),
		errors.Is(err, domain.ErrRoomClosed):
		return outboundMessage[any]{Type: "notice", Payload: noticePayload{Message: err.Error()}}
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
}
