package workflow

import (
	"context"
	"strings"

	"github.com/SaiNageswarS/support-agent/llm"
	"github.com/SaiNageswarS/support-agent/prompts"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ask answers a free-form question with the ticket context, outside the step flow.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", status.Error(codes.InvalidArgument, "empty query was provided")
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", status.Error(codes.InvalidArgument, "session id is required")
	}

	unlock := e.sessions.Lock(sessionID)
	defer unlock()

	conv, err := e.sessions.History(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := e.ensureTicketContext(conv); err != nil {
		return "", err
	}

	prompt, err := prompts.RenderAskPrompt(question)
	if err != nil {
		return "", renderError("ask", err)
	}
	persona, err := prompts.RenderPersona(false)
	if err != nil {
		return "", renderError("persona", err)
	}

	checkpoint := len(conv.Messages)
	conv.AddUserMessage(prompt)

	var reply strings.Builder
	err = e.llm.GenerateInference(ctx, conv.Messages,
		func(chunk string) error {
			reply.WriteString(chunk)
			return nil
		},
		llm.WithSystemPrompt(persona),
	)
	if err != nil {
		conv.Messages = conv.Messages[:checkpoint]
		return "", upstreamError(ctx, "chat completion", err)
	}

	answer := strings.TrimSpace(reply.String())
	conv.AddAssistantMessage(answer)
	if err := e.sessions.Save(ctx, conv); err != nil {
		return "", err
	}
	return answer, nil
}
