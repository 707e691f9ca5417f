package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/SaiNageswarS/support-agent/llm"
	"github.com/SaiNageswarS/support-agent/search"
	"github.com/SaiNageswarS/support-agent/tickets"
	"github.com/ollama/ollama/api"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mockLLMClient replays canned replies in order and records every call.
type mockLLMClient struct {
	replies      []string
	toolCalls    []api.ToolCall
	capabilities llm.Capability
	err          error

	callCount     int
	toolCallCount int
	lastMessages  []llm.Message

	// when set, each call signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (m *mockLLMClient) hold() {
	if m.entered == nil {
		return
	}
	m.entered <- struct{}{}
	<-m.release
}

func (m *mockLLMClient) next() (string, error) {
	m.callCount++
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", errors.New("no more replies")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *mockLLMClient) GenerateInference(ctx context.Context, messages []llm.Message, callback func(chunk string) error, opts ...llm.LLMOption) error {
	m.hold()
	m.lastMessages = append([]llm.Message(nil), messages...)
	reply, err := m.next()
	if err != nil {
		return err
	}
	return callback(reply)
}

func (m *mockLLMClient) GenerateInferenceWithTools(ctx context.Context, messages []llm.Message, contentCallback func(chunk string) error, toolCallback func(toolCalls []api.ToolCall) error, opts ...llm.LLMOption) error {
	m.hold()
	m.toolCallCount++
	m.lastMessages = append([]llm.Message(nil), messages...)
	reply, err := m.next()
	if err != nil {
		return err
	}
	if len(m.toolCalls) > 0 {
		if err := toolCallback(m.toolCalls); err != nil {
			return err
		}
	}
	if reply == "" {
		return nil
	}
	return contentCallback(reply)
}

func (m *mockLLMClient) Capabilities() llm.Capability { return m.capabilities }
func (m *mockLLMClient) GetModel() string             { return "mock" }

type fakeTicketStore struct {
	tickets     map[string]tickets.Ticket
	deleteErr   error
	getCount    int
	deleteCalls []string
}

func newFakeTicketStore(ts ...tickets.Ticket) *fakeTicketStore {
	s := &fakeTicketStore{tickets: map[string]tickets.Ticket{}}
	for _, t := range ts {
		s.tickets[t.ID()] = t
	}
	return s
}

func (s *fakeTicketStore) Get(id string) (tickets.Ticket, error) {
	s.getCount++
	t, ok := s.tickets[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "ticket %s not found", id)
	}
	return t, nil
}

func (s *fakeTicketStore) Delete(id string) error {
	s.deleteCalls = append(s.deleteCalls, id)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.tickets[id]; !ok {
		return status.Errorf(codes.NotFound, "ticket %s not found", id)
	}
	delete(s.tickets, id)
	return nil
}

// fakeCatalog mirrors a fakeTicketStore. Ids in stale stay invisible until the next
// Refresh.
type fakeCatalog struct {
	store        *fakeTicketStore
	version      uint64
	refreshCount int
	stale        map[string]bool
}

func (c *fakeCatalog) Digest() (string, uint64) {
	return "digest", c.version
}

func (c *fakeCatalog) Get(id string) (tickets.Ticket, bool) {
	if c.stale[id] {
		return nil, false
	}
	t, ok := c.store.tickets[id]
	return t, ok
}

func (c *fakeCatalog) Refresh() error {
	c.refreshCount++
	c.version++
	c.stale = nil
	return nil
}

type mockSearcher struct {
	matches   []search.Match
	err       error
	callCount int
	lastQuery search.Query
}

func (m *mockSearcher) Search(ctx context.Context, q search.Query) ([]search.Match, error) {
	m.callCount++
	m.lastQuery = q
	return m.matches, m.err
}

type mockMailer struct {
	mu        sync.Mutex
	failFor   string
	callCount int
	sent      map[string]string
	subjects  []string
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	if to == m.failFor {
		return errors.New("smtp: 451 temporary failure")
	}
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[to] = body
	m.subjects = append(m.subjects, subject)
	return nil
}
