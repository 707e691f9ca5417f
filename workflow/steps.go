package workflow

import (
	"context"
	"encoding/json"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/support-agent/llm"
	"github.com/SaiNageswarS/support-agent/prompts"
	"github.com/SaiNageswarS/support-agent/search"
	"github.com/SaiNageswarS/support-agent/tickets"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var escalationTool = api.Tool{
	Type: "function",
	Function: api.ToolFunction{
		Name:        EscalationFunction,
		Description: "Escalate the ticket in focus to human support staff by email and remove it from the active queue.",
	},
}

func (e *Engine) dispatchTable() map[Step]stepFunc {
	return map[Step]stepFunc{
		StepIdentify: e.identify,
		StepAnnounce: e.announce,
		StepSimilar:  e.similar,
		StepResolve:  e.resolve,
	}
}

func (e *Engine) identify(ctx context.Context, t *turn) error {
	instruction, err := prompts.RenderIdentifyPrompt(t.conv.ContextTicketID)
	if err != nil {
		return renderError("identify", err)
	}
	return e.complete(ctx, t, instruction, nil)
}

func (e *Engine) announce(ctx context.Context, t *turn) error {
	instruction, err := prompts.RenderAnnouncePrompt(t.conv.ContextTicketID)
	if err != nil {
		return renderError("announce", err)
	}
	return e.complete(ctx, t, instruction, nil)
}

func (e *Engine) similar(ctx context.Context, t *turn) error {
	id := t.conv.ContextTicketID
	ticket, err := e.loadTicket(id)
	if err != nil {
		return err
	}

	var lines []string
	if ticket != nil {
		t.matches, err = e.findSimilar(ctx, ticket)
		if err != nil {
			return err
		}
		lines = matchLines(t.matches)
	}

	instruction, err := prompts.RenderSimilarPrompt(id, encodeTicket(ticket), lines)
	if err != nil {
		return renderError("similar", err)
	}
	return e.complete(ctx, t, instruction, nil)
}

func (e *Engine) resolve(ctx context.Context, t *turn) error {
	id := t.conv.ContextTicketID
	ticket, err := e.loadTicket(id)
	if err != nil {
		return err
	}

	native := e.llm.Capabilities()&llm.NativeToolCalling != 0
	instruction, err := prompts.RenderResolvePrompt(id, encodeTicket(ticket), native)
	if err != nil {
		return renderError("resolve", err)
	}

	var tools []api.Tool
	if native {
		tools = []api.Tool{escalationTool}
	}
	return e.complete(ctx, t, instruction, tools)
}

// findSimilar searches on the ticket's title and description and drops weak matches.
func (e *Engine) findSimilar(ctx context.Context, ticket tickets.Ticket) ([]search.Match, error) {
	query := ticket.Title() + "\n" + ticket.Description()

	matches, err := e.searcher.Search(ctx, search.Query{Text: query, TopK: e.topK})
	if err != nil {
		return nil, upstreamError(ctx, "similarity search", err)
	}

	filtered := search.FilterByScore(matches, e.minRelevance)
	logger.Info("Similar tickets found",
		zap.String("ticket_id", ticket.ID()), zap.Int("matches", len(matches)), zap.Int("kept", len(filtered)))
	return filtered, nil
}

// loadTicket returns nil without error when there is no ticket in focus or it is gone.
func (e *Engine) loadTicket(id string) (tickets.Ticket, error) {
	if id == "" {
		return nil, nil
	}

	ticket, err := e.tickets.Get(id)
	if status.Code(err) == codes.NotFound {
		logger.Info("Context ticket not found", zap.String("ticket_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func encodeTicket(ticket tickets.Ticket) string {
	if ticket == nil {
		return ""
	}
	data, err := ticket.Encode()
	if err != nil {
		return ""
	}
	return string(data)
}

func matchLines(matches []search.Match) []string {
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		lines = append(lines, string(data))
	}
	return lines
}

func renderError(name string, err error) error {
	logger.Error("Failed to render prompt", zap.String("prompt", name), zap.Error(err))
	return status.Errorf(codes.Internal, "failed to render %s prompt", name)
}
