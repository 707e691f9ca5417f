package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/support-agent/llm"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ConversationManager handles session state on top of a Store and serializes
// mutation of each session through a per-session lock.
type ConversationManager struct {
	store   Store
	maxMsgs int
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewConversationManager creates a manager. maxMsgs bounds the number of user turns
// kept per session; 0 keeps the full history.
func NewConversationManager(store Store, maxMsgs int) *ConversationManager {
	return &ConversationManager{
		store:   store,
		maxMsgs: maxMsgs,
		now:     time.Now,
		locks:   make(map[string]*sessionLock),
	}
}

// History returns the session's conversation, creating an empty one on first access.
func (cm *ConversationManager) History(ctx context.Context, sessionID string) (*Conversation, error) {
	conv, err := cm.store.Load(ctx, sessionID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		logger.Error("Failed to load session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, status.Error(codes.Unavailable, "session store unavailable")
	}

	conv = &Conversation{ID: sessionID, Messages: []llm.Message{}, UpdatedAt: cm.now()}
	if err := cm.store.Save(ctx, conv); err != nil {
		logger.Error("Failed to create session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, status.Error(codes.Unavailable, "session store unavailable")
	}
	return conv, nil
}

// Snapshot returns a copy of an existing conversation, taken under the session lock,
// without creating one.
func (cm *ConversationManager) Snapshot(ctx context.Context, sessionID string) (*Conversation, error) {
	unlock := cm.Lock(sessionID)
	defer unlock()

	conv, err := cm.store.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, status.Errorf(codes.NotFound, "session %s not found", sessionID)
	}
	if err != nil {
		logger.Error("Failed to load session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, status.Error(codes.Unavailable, "session store unavailable")
	}
	return conv.Clone(), nil
}

// List returns the ids of all stored sessions.
func (cm *ConversationManager) List(ctx context.Context) ([]string, error) {
	ids, err := cm.store.List(ctx)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "session store unavailable")
	}
	return ids, nil
}

func (cm *ConversationManager) Exists(ctx context.Context, sessionID string) (bool, error) {
	_, err := cm.store.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (cm *ConversationManager) ContextTicket(ctx context.Context, sessionID string) (string, error) {
	unlock := cm.Lock(sessionID)
	defer unlock()

	conv, err := cm.History(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return conv.ContextTicketID, nil
}

func (cm *ConversationManager) SetContextTicket(ctx context.Context, sessionID, ticketID string) error {
	unlock := cm.Lock(sessionID)
	defer unlock()

	conv, err := cm.History(ctx, sessionID)
	if err != nil {
		return err
	}
	conv.ContextTicketID = ticketID
	return cm.Save(ctx, conv)
}

// ClearHistory waits for any in-flight request on the session, so its final Save
// cannot resurrect the cleared state.
func (cm *ConversationManager) ClearHistory(ctx context.Context, sessionID string) error {
	unlock := cm.Lock(sessionID)
	defer unlock()

	if err := cm.store.Delete(ctx, sessionID); err != nil {
		logger.Error("Failed to clear session", zap.String("session_id", sessionID), zap.Error(err))
		return status.Error(codes.Unavailable, "session store unavailable")
	}
	return nil
}

// Save trims the history and writes the conversation back to the store.
func (cm *ConversationManager) Save(ctx context.Context, conv *Conversation) error {
	conv.Messages = cm.trimForSession(conv.Messages)
	conv.UpdatedAt = cm.now()

	if err := cm.store.Save(ctx, conv); err != nil {
		logger.Error("Failed to save session", zap.String("session_id", conv.ID), zap.Error(err))
		return status.Error(codes.Unavailable, "session store unavailable")
	}
	return nil
}

// Lock blocks until the caller owns the session and returns the release func.
func (cm *ConversationManager) Lock(sessionID string) func() {
	cm.locksMu.Lock()
	l, ok := cm.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		cm.locks[sessionID] = l
	}
	l.refs++
	cm.locksMu.Unlock()

	l.mu.Lock()
	return func() { cm.release(sessionID, l) }
}

// tryLock succeeds only when nobody holds or waits for the session.
func (cm *ConversationManager) tryLock(sessionID string) (func(), bool) {
	cm.locksMu.Lock()
	defer cm.locksMu.Unlock()

	if _, busy := cm.locks[sessionID]; busy {
		return nil, false
	}
	l := &sessionLock{refs: 1}
	l.mu.Lock()
	cm.locks[sessionID] = l
	return func() { cm.release(sessionID, l) }, true
}

func (cm *ConversationManager) release(sessionID string, l *sessionLock) {
	l.mu.Unlock()

	cm.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(cm.locks, sessionID)
	}
	cm.locksMu.Unlock()
}

// Sweep removes sessions idle for longer than idleFor. Sessions in use are skipped.
func (cm *ConversationManager) Sweep(ctx context.Context, idleFor time.Duration) (int, error) {
	cutoff := cm.now().Add(-idleFor)
	ids, err := cm.store.IdleSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		unlock, ok := cm.tryLock(id)
		if !ok {
			continue
		}

		conv, err := cm.store.Load(ctx, id)
		if err == nil && conv.UpdatedAt.Before(cutoff) {
			err = cm.store.Delete(ctx, id)
			if err == nil {
				removed++
			}
		}
		unlock()

		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return removed, err
		}
	}
	return removed, nil
}

// trimForSession keeps the ticket context plus the last maxMsgs user turns and
// the messages that follow them.
func (cm *ConversationManager) trimForSession(msgs []llm.Message) []llm.Message {
	if cm.maxMsgs <= 0 || len(msgs) == 0 {
		return msgs
	}

	usersSeen := 0
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			usersSeen++
			if usersSeen == cm.maxMsgs {
				start = i
				break
			}
		}
	}
	if start == 0 {
		return msgs
	}

	trimmed := make([]llm.Message, 0, len(msgs)-start)
	for _, m := range msgs[:start] {
		if m.TicketContext {
			trimmed = append(trimmed, m)
		}
	}
	return append(trimmed, msgs[start:]...)
}

func (cm *ConversationManager) GetMaxMessages() int {
	return cm.maxMsgs
}
