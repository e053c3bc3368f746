package chat

import (
	"sort"
	"sync"

	"github.com/johndosdos/huddle/internal/model"
)

// HistoryLimit bounds how many messages are handed to a client at once.
// It limits transfer size only; the logs themselves are never trimmed.
const HistoryLimit = 200

// RoomStore keeps an append-only message log per room.
//
// Logs grow without bound for the lifetime of the process.
type RoomStore struct {
	mu   sync.RWMutex
	logs map[string][]model.Message
}

// NewRoomStore returns a store holding an empty DefaultRoom log.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		logs: map[string][]model.Message{DefaultRoom: {}},
	}
}

// SwitchRoom moves connID to room in the registry, makes sure the room has
// a log and returns its recent history. ok is false when connID has not
// joined.
func (s *RoomStore) SwitchRoom(reg *Registry, connID, room string) (history []model.Message, ok bool) {
	if _, ok := reg.SetRoom(connID, room); !ok {
		return nil, false
	}

	s.mu.Lock()
	if _, exists := s.logs[room]; !exists {
		s.logs[room] = []model.Message{}
	}
	s.mu.Unlock()

	return s.RecentHistory(room, HistoryLimit), true
}

// Append adds msg to the end of room's log, creating the log if needed.
func (s *RoomStore) Append(room string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[room] = append(s.logs[room], msg)
}

// RecentHistory returns the last limit messages of room in chronological
// order. A non-positive limit means HistoryLimit.
func (s *RoomStore) RecentHistory(room string, limit int) []model.Message {
	if limit <= 0 {
		limit = HistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.logs[room]
	if limit > len(messages) {
		limit = len(messages)
	}

	result := make([]model.Message, limit)
	copy(result, messages[len(messages)-limit:])
	return result
}

// Exists reports whether room has a log.
func (s *RoomStore) Exists(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.logs[room]
	return ok
}

// Rooms lists every known room ordered by name.
func (s *RoomStore) Rooms() []model.RoomSummary {
	s.mu.RLock()
	rooms := make([]model.RoomSummary, 0, len(s.logs))
	for name, log := range s.logs {
		rooms = append(rooms, model.RoomSummary{Name: name, Messages: len(log)})
	}
	s.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms
}
