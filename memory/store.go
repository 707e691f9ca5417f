package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists conversations. Load returns ErrSessionNotFound for unknown ids.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, sessionID string) error
	// List returns every stored session id, sorted.
	List(ctx context.Context) ([]string, error)
	// IdleSince lists sessions whose last update is before the cutoff.
	IdleSince(ctx context.Context, cutoff time.Time) ([]string, error)
}

// InMemoryStore keeps conversations for the lifetime of the process. Load hands out
// the stored pointer, so repeated loads of one session share a single Conversation.
// Update times are copied on Save so IdleSince never reads a conversation that a
// session holder is writing.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Conversation
	updated  map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Conversation),
		updated:  make(map[string]time.Time),
	}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

func (s *InMemoryStore) Save(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[conv.ID] = conv
	s.updated[conv.ID] = conv.UpdatedAt
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	delete(s.updated, sessionID)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) IdleSince(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, updatedAt := range s.updated {
		if updatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
