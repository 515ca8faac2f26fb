package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RoomsHandler exposes the non-websocket room endpoints: room creation, the
// leaderboard and the CSV results export.
type RoomsHandler struct {
	service *app.RoomService
}

func NewRoomsHandler(service *app.RoomService) *RoomsHandler {
	return &RoomsHandler{service: service}
}

type createRoomRequest struct {
	TeacherID          string `json:"teacherId"`
	QuizID             string `json:"quizId"`
	Mode               string `json:"mode"`
	TimeLimitSeconds   int    `json:"timeLimitSeconds"`
	RandomizeQuestions bool   `json:"randomizeQuestions"`
	RandomizeAnswers   bool   `json:"randomizeAnswers"`
}

type createRoomResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TeacherID == "" || req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "teacherId and quizId are required")
		return
	}

	room, err := h.service.CreateRoom(r.Context(), app.CreateRoomParams{
		TeacherID:          req.TeacherID,
		QuizID:             req.QuizID,
		Mode:               domain.Mode(req.Mode),
		TimeLimitSeconds:   req.TimeLimitSeconds,
		RandomizeQuestions: req.RandomizeQuestions,
		RandomizeAnswers:   req.RandomizeAnswers,
	})
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrCodeExhausted):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Printf("create room: %v", err)
		writeError(w, http.StatusInternalServerError, "could not create room")
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{ID: room.ID, Code: room.Code})
}

func (h *RoomsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	snap, _, err := h.service.RunQuestions(r.Context(), r.PathValue("code"))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	rows, err := h.service.Leaderboard(r.Context(), snap.ID)
	if err != nil {
		log.Printf("leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "could not build leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *RoomsHandler) ResultsCSV(w http.ResponseWriter, r *http.Request) {
	snap, _, err := h.service.RunQuestions(r.Context(), r.PathValue("code"))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="results-`+snap.Code+`.csv"`)
	if err := h.service.WriteResultsCSV(r.Context(), snap.ID, w); err != nil {
		log.Printf("results csv: %v", err)
	}
}

func writeRoomError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrRoomNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Printf("load room: %v", err)
	writeError(w, http.StatusInternalServerError, "could not load room")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
