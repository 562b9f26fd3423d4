// Package history keeps the bounded conversation log for one session.
package history

import (
	"sync"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// DefaultMaxSize is the number of entries kept when no bound is configured.
const DefaultMaxSize = 10

// Store is an ordered, bounded message log. When an append would exceed
// the bound the oldest entries are dropped. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages []entities.Message
	maxSize  int
}

// NewStore creates a store holding at most maxSize entries.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		messages: make([]entities.Message, 0, maxSize+1),
		maxSize:  maxSize,
	}
}

// MaxSize returns the configured bound.
func (s *Store) MaxSize() int {
	return s.maxSize
}

// Add appends a message and evicts from the front until the bound holds.
func (s *Store) Add(msg entities.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if over := len(s.messages) - s.maxSize; over > 0 {
		kept := make([]entities.Message, s.maxSize, s.maxSize+1)
		copy(kept, s.messages[over:])
		s.messages = kept
	}
}

// History returns a snapshot copy; mutating it does not affect the store.
func (s *Store) History() []entities.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// FormattedHistory maps the log to completion roles (user becomes human).
func (s *Store) FormattedHistory() []entities.PromptMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.PromptMessage, 0, len(s.messages))
	for _, m := range s.messages {
		role := entities.PromptAssistant
		if m.Role == entities.RoleUser {
			role = entities.PromptHuman
		}
		out = append(out, entities.PromptMessage{Role: role, Content: m.Content})
	}
	return out
}

// Rollback removes the newest entry if its ID matches. It reports whether
// anything was removed; an already-evicted or superseded entry is left alone.
func (s *Store) Rollback(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.messages)
	if n == 0 || s.messages[n-1].ID != id {
		return false
	}
	s.messages = s.messages[:n-1]
	return true
}

// Clear empties the log.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
