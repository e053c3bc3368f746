package chat

import (
	"sort"
	"strings"
	"sync"

	"github.com/johndosdos/huddle/internal/model"
)

// PrivateStore keeps one ordered log per unordered pair of display names.
type PrivateStore struct {
	mu   sync.RWMutex
	logs map[string][]model.Message
}

// NewPrivateStore returns an empty PrivateStore.
func NewPrivateStore() *PrivateStore {
	return &PrivateStore{
		logs: make(map[string][]model.Message),
	}
}

// CanonicalKey returns the same key for (a, b) and (b, a).
func CanonicalKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// Append adds msg to the conversation between a and b.
func (s *PrivateStore) Append(a, b string, msg model.Message) {
	key := CanonicalKey(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[key] = append(s.logs[key], msg)
}

// MarkSeen flags messageID in the owner/peer conversation as seen. Only the
// recipient can do so, and only once: any other call returns ok == false
// and changes nothing.
func (s *PrivateStore) MarkSeen(owner, peer, messageID string) (model.Message, bool) {
	key := CanonicalKey(owner, peer)

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[key]
	for i := range log {
		if log[i].ID != messageID {
			continue
		}
		if log[i].Seen || log[i].To != owner {
			return model.Message{}, false
		}
		log[i].Seen = true
		return log[i], true
	}
	return model.Message{}, false
}

// FullHistory returns the whole conversation between a and b in
// chronological order.
func (s *PrivateStore) FullHistory(a, b string) []model.Message {
	key := CanonicalKey(a, b)

	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[key]
	result := make([]model.Message, len(log))
	copy(result, log)
	return result
}
