package app

import (
	"time"

	"quizroom-service/internal/domain"
)

// EventKind labels a room change notification.
type EventKind string

const (
	// EventRoom signals a room phase change (start/advance/reveal/hide).
	EventRoom EventKind = "room"
	// EventParticipants signals a roster change (join/finish).
	EventParticipants EventKind = "participants"
	// EventEnded signals the room has been closed by the teacher.
	EventEnded EventKind = "ended"
)

// RoomSnapshot is the authoritative room state carried by every event.
// Delivery is at-least-once and may reorder, so clients replace their local
// view with the snapshot instead of applying events as deltas.
type RoomSnapshot struct {
	ID                string        `json:"id"`
	Code              string        `json:"code"`
	QuizID            string        `json:"quizId"`
	Mode              domain.Mode   `json:"mode"`
	Phase             domain.Phase  `json:"phase"`
	QuestionIndex     int           `json:"questionIndex"`
	ShowResults       bool          `json:"showResults"`
	TimeLimitSeconds  int           `json:"timeLimitSeconds"`
	TotalQuestions    int           `json:"totalQuestions"`
	Active            bool          `json:"active"`
	QuestionStartedAt time.Time     `json:"questionStartedAt"`
}

// ParticipantView is the roster entry shown on the teacher control view.
type ParticipantView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
	Finished    bool      `json:"finished"`
}

// Event is one change notification for a room.
type Event struct {
	Kind          EventKind         `json:"kind"`
	Room          RoomSnapshot      `json:"room"`
	Participants  []ParticipantView `json:"participants,omitempty"`
	FinishedCount int               `json:"finishedCount"`
}

func participantViews(parts []domain.Participant) ([]ParticipantView, int) {
	views := make([]ParticipantView, 0, len(parts))
	finished := 0
	for _, p := range parts {
		if p.Finished() {
			finished++
		}
		views = append(views, ParticipantView{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt,
			Finished:    p.Finished(),
		})
	}
	return views, finished
}
