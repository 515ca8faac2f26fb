package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a join code does not resolve to an active room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrRoomClosed rejects mutations against a room that has ended.
	ErrRoomClosed = errors.New("room closed")
	// ErrLastQuestion signals an advance past the final question; non-fatal.
	ErrLastQuestion = errors.New("already at last question")
	// ErrAlreadyStarted rejects a second start of the same room.
	ErrAlreadyStarted = errors.New("room already started")
	// ErrNotStarted rejects transitions that need an active question.
	ErrNotStarted = errors.New("room not started")
	// ErrResultsHidden rejects hiding results that are not shown.
	ErrResultsHidden = errors.New("results not shown")
	// ErrManualOnly rejects teacher-driven progression on automatic rooms.
	ErrManualOnly = errors.New("room is not in manual mode")
	// ErrNotRoomOwner rejects control actions from anyone but the owning teacher.
	ErrNotRoomOwner = errors.New("not the room owner")
	// ErrCodeConflict is returned by stores when an active room already holds a code.
	ErrCodeConflict = errors.New("room code already in use")
	// ErrCodeExhausted is returned when code allocation keeps colliding.
	ErrCodeExhausted = errors.New("could not allocate a unique room code")
	// ErrUnsupportedSubtype is returned for declared-but-unimplemented generators.
	ErrUnsupportedSubtype = errors.New("unsupported quiz subtype")
	// ErrNoQuestions indicates a quiz materialized to an empty question list.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrQuestionOutOfRange rejects an answer index beyond the run's question list.
	ErrQuestionOutOfRange = errors.New("question index out of range")
)
