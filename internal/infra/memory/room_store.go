package memory

import (
	"context"
	"sync"

	"quizroom-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
// A join code maps to its most recent room; creation rejects a code that is
// still held by an active room.
type RoomStore struct {
	mu     sync.RWMutex
	rooms  map[string]domain.Room
	byCode map[string]string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:  make(map[string]domain.Room),
		byCode: make(map[string]string),
	}
}

func (s *RoomStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byCode[room.Code]; ok {
		if existing, ok := s.rooms[existingID]; ok && existing.Active {
			return domain.ErrCodeConflict
		}
	}
	s.rooms[room.ID] = *room
	s.byCode[room.Code] = room.ID
	return nil
}

func (s *RoomStore) Get(_ context.Context, id string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomStore) GetByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *RoomStore) Update(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.rooms[room.ID] = *room
	return nil
}
