package memory

import (
	"time"

	"github.com/SaiNageswarS/support-agent/llm"
)

// Conversation is the per-session state carried across workflow steps.
type Conversation struct {
	ID       string        `json:"id"`
	Messages []llm.Message `json:"messages"`

	// ContextTicketID is the ticket currently in focus; empty when none.
	ContextTicketID string `json:"context_ticket_id,omitempty"`

	// TicketContextVersion is the catalog version of the ticket digest embedded in Messages.
	TicketContextVersion uint64 `json:"ticket_context_version,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone copies the conversation so it can be read after the session lock is released.
func (m *Conversation) Clone() *Conversation {
	c := *m
	c.Messages = make([]llm.Message, len(m.Messages))
	copy(c.Messages, m.Messages)
	return &c
}

func (m *Conversation) AddSystemMessage(content string) {
	m.Messages = append(m.Messages, llm.Message{Role: llm.RoleSystem, Content: content})
}

func (m *Conversation) AddUserMessage(content string) {
	m.Messages = append(m.Messages, llm.Message{Role: llm.RoleUser, Content: content})
}

func (m *Conversation) AddAssistantMessage(content string) {
	m.Messages = append(m.Messages, llm.Message{Role: llm.RoleAssistant, Content: content})
}

// SetTicketContext places the ticket digest at the head of the history, replacing
// the previous digest when the catalog version changed.
func (m *Conversation) SetTicketContext(digest string, version uint64) {
	msg := llm.Message{Role: llm.RoleSystem, Content: digest, TicketContext: true}

	for i := range m.Messages {
		if m.Messages[i].TicketContext {
			if m.TicketContextVersion != version || m.Messages[i].Content != digest {
				m.Messages[i] = msg
			}
			m.TicketContextVersion = version
			return
		}
	}

	m.Messages = append([]llm.Message{msg}, m.Messages...)
	m.TicketContextVersion = version
}

// HasTicketContext reports whether the digest for the given catalog version is loaded.
func (m *Conversation) HasTicketContext(version uint64) bool {
	if m.TicketContextVersion != version {
		return false
	}
	for _, msg := range m.Messages {
		if msg.TicketContext {
			return true
		}
	}
	return false
}
