package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/support-agent/llm"
	"github.com/SaiNageswarS/support-agent/memory"
	"github.com/SaiNageswarS/support-agent/prompts"
	"github.com/SaiNageswarS/support-agent/search"
	"github.com/SaiNageswarS/support-agent/tickets"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sessions is the session state the engine reads and mutates.
type Sessions interface {
	Lock(sessionID string) func()
	History(ctx context.Context, sessionID string) (*memory.Conversation, error)
	Save(ctx context.Context, conv *memory.Conversation) error
}

// TicketStore reads and removes ticket records.
type TicketStore interface {
	Get(id string) (tickets.Ticket, error)
	Delete(id string) error
}

// TicketCatalog is the cached digest of all tickets seeded into every session.
type TicketCatalog interface {
	Digest() (string, uint64)
	Get(id string) (tickets.Ticket, bool)
	Refresh() error
}

// Result is the structured answer plus the fields the engine adds.
type Result struct {
	Answer
	NextStep  Step           `json:"next_workflow_action_step"`
	Matches   []search.Match `json:"semantic_ticket_matches,omitempty"`
	SessionID string         `json:"session_id"`
}

type stepFunc func(ctx context.Context, t *turn) error

// turn carries one request through a step.
type turn struct {
	step     Step
	conv     *memory.Conversation
	question string

	raw            string
	toolEscalation bool
	decision       Decision
	matches        []search.Match
}

type Engine struct {
	llm       llm.LLMClient
	sessions  Sessions
	tickets   TicketStore
	catalog   TicketCatalog
	searcher  search.Searcher
	escalator *Escalator
	recorder  Recorder

	persona      string
	topK         int
	minRelevance float64

	steps map[Step]stepFunc
}

// Run executes one workflow step for the session and returns the answer together
// with the step the caller should invoke next.
func (e *Engine) Run(ctx context.Context, sessionID string, requested Step, question string) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, status.Error(codes.InvalidArgument, "question must not be empty")
	}
	handler, ok := e.steps[requested]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported workflow step %d", int(requested))
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, status.Error(codes.InvalidArgument, "session id is required")
	}

	unlock := e.sessions.Lock(sessionID)
	defer unlock()

	start := time.Now()
	result, err := e.run(ctx, sessionID, requested, question, handler)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = status.Code(err).String()
	case result.FunctionCall == EscalationFunction:
		outcome = "escalated"
	}
	e.recorder.ObserveStep(requested, outcome, time.Since(start))
	return result, err
}

func (e *Engine) run(ctx context.Context, sessionID string, requested Step, question string, handler stepFunc) (*Result, error) {
	conv, err := e.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.ensureTicketContext(conv); err != nil {
		return nil, err
	}

	// a failed step leaves no trace in the history
	checkpoint := len(conv.Messages)
	t := &turn{step: requested, conv: conv, question: question}
	if err := handler(ctx, t); err != nil {
		conv.Messages = conv.Messages[:checkpoint]
		return nil, err
	}

	result, err := e.advance(ctx, t)
	if err != nil {
		conv.Messages = conv.Messages[:checkpoint]
		return nil, err
	}
	result.SessionID = sessionID

	if err := e.sessions.Save(ctx, conv); err != nil {
		return nil, err
	}
	return result, nil
}

// advance applies the model's decision to the session and picks the next step.
func (e *Engine) advance(ctx context.Context, t *turn) (*Result, error) {
	conv := t.conv
	stored := conv.ContextTicketID
	answer := t.decision.Answer
	returned := answer.ContextTicketID

	if returned != "" && !e.knownTicket(returned) {
		logger.Info("Ignoring unknown ticket id from model",
			zap.String("session_id", conv.ID), zap.String("ticket_id", returned))
		returned = ""
	}

	escalate := t.decision.Kind == DecisionEscalate || t.toolEscalation
	if escalate && t.step != StepResolve {
		logger.Info("Ignoring escalation request outside the resolve step",
			zap.String("session_id", conv.ID), zap.Stringer("step", t.step))
		escalate = false
		answer.FunctionCall = ""
	}

	if escalate {
		target := stored
		if returned != "" {
			target = returned
		}
		if target == "" {
			return nil, status.Error(codes.FailedPrecondition, "escalation requested but no ticket is in focus")
		}

		override, err := e.escalator.Escalate(ctx, conv, target)
		if err != nil {
			return nil, err
		}

		conv.ContextTicketID = ""
		return &Result{Answer: *override, NextStep: StepIdentify, Matches: t.matches}, nil
	}

	next := nextStep[t.step]
	if returned != "" && returned != stored {
		if stored != "" {
			logger.Info("Context ticket switched",
				zap.String("session_id", conv.ID), zap.String("from", stored), zap.String("to", returned))
		}
		conv.ContextTicketID = returned
		next = StepAnnounce
	}
	if conv.ContextTicketID == "" {
		next = StepIdentify
	}

	answer.ContextTicketID = conv.ContextTicketID
	return &Result{Answer: answer, NextStep: next, Matches: t.matches}, nil
}

// knownTicket checks the catalog first and then the ticket store, which sees tickets
// written since the catalog was last rebuilt. A store hit refreshes the catalog.
func (e *Engine) knownTicket(id string) bool {
	if _, ok := e.catalog.Get(id); ok {
		return true
	}
	if _, err := e.tickets.Get(id); err != nil {
		return false
	}
	if err := e.catalog.Refresh(); err != nil {
		logger.Error("Failed to refresh ticket catalog", zap.Error(err))
	}
	return true
}

// ensureTicketContext keeps the session's ticket digest in line with the catalog.
func (e *Engine) ensureTicketContext(conv *memory.Conversation) error {
	digest, version := e.catalog.Digest()
	if conv.HasTicketContext(version) {
		return nil
	}

	content, err := prompts.RenderTicketContext(digest)
	if err != nil {
		logger.Error("Failed to render ticket context", zap.Error(err))
		return status.Error(codes.Internal, "failed to render ticket context")
	}
	conv.SetTicketContext(content, version)
	return nil
}

// complete appends the step instruction and question, asks the model for a
// structured answer and records the raw reply.
func (e *Engine) complete(ctx context.Context, t *turn, instruction string, tools []api.Tool) error {
	t.conv.AddSystemMessage(instruction)
	t.conv.AddUserMessage(t.question)

	var reply strings.Builder
	onContent := func(chunk string) error {
		reply.WriteString(chunk)
		return nil
	}
	opts := []llm.LLMOption{
		llm.WithSystemPrompt(e.persona),
		llm.WithJSONResponse(),
		llm.WithTemperature(0.2),
	}

	var err error
	if len(tools) > 0 && e.llm.Capabilities()&llm.NativeToolCalling != 0 {
		err = e.llm.GenerateInferenceWithTools(ctx, t.conv.Messages, onContent,
			func(calls []api.ToolCall) error {
				for _, call := range calls {
					if call.Function.Name == EscalationFunction {
						t.toolEscalation = true
					}
				}
				return nil
			},
			append(opts, llm.WithTools(tools))...,
		)
	} else {
		err = e.llm.GenerateInference(ctx, t.conv.Messages, onContent, opts...)
	}
	if err != nil {
		return upstreamError(ctx, "chat completion", err)
	}

	t.raw = strings.TrimSpace(reply.String())
	if t.raw == "" && t.toolEscalation {
		t.decision = Decision{Kind: DecisionEscalate, Answer: Answer{FunctionCall: EscalationFunction}}
		t.conv.AddAssistantMessage(`{"answer":"","function_call":"email_escalation"}`)
		return nil
	}

	t.decision, err = DecodeAnswer(t.raw)
	if err != nil {
		return err
	}
	t.conv.AddAssistantMessage(t.raw)
	return nil
}

// upstreamError classifies a collaborator failure. The caller's deadline wins over
// the transport error it caused.
func upstreamError(ctx context.Context, what string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded {
		return status.Errorf(codes.DeadlineExceeded, "%s timed out", what)
	}
	if ctx.Err() == context.Canceled {
		return status.Errorf(codes.Canceled, "%s canceled", what)
	}
	logger.Error("Upstream call failed", zap.String("call", what), zap.Error(err))
	return status.Errorf(codes.Unavailable, "%s failed", what)
}
