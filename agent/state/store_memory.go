package state

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store for development and tests. TTL is not
// enforced.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
	opts     storeOptions
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o, err := applyOptions(opts)
	if err != nil {
		o = defaultStoreOptions()
	}
	return &MemoryStore{sessions: map[string][]Message{}, opts: o}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Conversation, error) {
	key, err := s.opts.key(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.sessions[key]
	if !ok || len(msgs) == 0 {
		return nil, ErrConversationNotFound
	}
	conv := NewConversation(sessionID)
	conv.Messages = append(conv.Messages, msgs...)
	conv.touch()
	return conv, nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...Message) error {
	key, err := s.opts.key(sessionID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(s.sessions[key], msgs...)
	if over := len(all) - s.opts.maxMessages; over > 0 {
		all = append([]Message(nil), all[over:]...)
	}
	s.sessions[key] = all
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	key, err := s.opts.key(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}
