package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-collection-boot/async"
	"github.com/SaiNageswarS/support-agent/llm"
	"github.com/SaiNageswarS/support-agent/mailer"
	"github.com/SaiNageswarS/support-agent/memory"
	"github.com/SaiNageswarS/support-agent/prompts"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Escalator emails a ticket to support staff and retires it. Stages run in order
// and the first failure stops the rest.
type Escalator struct {
	llm          llm.LLMClient
	tickets      TicketStore
	catalog      TicketCatalog
	mailer       mailer.Mailer
	escalationTo string
	oversightTo  string
	recorder     Recorder
}

func NewEscalator(client llm.LLMClient, store TicketStore, catalog TicketCatalog, m mailer.Mailer, escalationTo, oversightTo string) *Escalator {
	return &Escalator{
		llm:          client,
		tickets:      store,
		catalog:      catalog,
		mailer:       m,
		escalationTo: escalationTo,
		oversightTo:  oversightTo,
		recorder:     NoOpRecorder{},
	}
}

// Escalate returns the answer that replaces the model's reply. On error the session
// is left untouched so the caller can retry.
func (x *Escalator) Escalate(ctx context.Context, conv *memory.Conversation, ticketID string) (*Answer, error) {
	answer, err := x.escalate(ctx, conv, ticketID)
	if err != nil {
		x.recorder.ObserveEscalation(status.Code(err).String())
		return nil, err
	}
	x.recorder.ObserveEscalation("ok")
	return answer, nil
}

func (x *Escalator) escalate(ctx context.Context, conv *memory.Conversation, ticketID string) (*Answer, error) {
	ticket, err := x.tickets.Get(ticketID)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, err
		}
		return nil, aborted("fetch ticket", ticketID, false, err)
	}

	title := ticket.Title()
	body, err := x.composeBody(ctx, ticketID, title, encodeTicket(ticket))
	if err != nil {
		return nil, aborted("compose email", ticketID, false, err)
	}

	subject := fmt.Sprintf("Escalation: Ticket %s - %s", ticketID, title)
	if err := x.sendAll(ctx, subject, body); err != nil {
		return nil, aborted("send email", ticketID, true, err)
	}

	if err := x.tickets.Delete(ticketID); err != nil {
		return nil, aborted("delete ticket", ticketID, true, err)
	}

	if err := x.catalog.Refresh(); err != nil {
		return nil, aborted("refresh ticket context", ticketID, true, err)
	}
	digest, version := x.catalog.Digest()
	content, err := prompts.RenderTicketContext(digest)
	if err != nil {
		return nil, aborted("refresh ticket context", ticketID, true, err)
	}
	conv.SetTicketContext(content, version)

	logger.Info("Ticket escalated", zap.String("session_id", conv.ID), zap.String("ticket_id", ticketID))
	return &Answer{
		Answer:       fmt.Sprintf("Ticket %s has been escalated to the support team by email and removed from the active queue.", ticketID),
		FunctionCall: EscalationFunction,
	}, nil
}

func (x *Escalator) composeBody(ctx context.Context, ticketID, title, ticket string) (string, error) {
	systemPrompt, userPrompt, err := prompts.RenderEscalationEmailPrompt(ticketID, title, ticket)
	if err != nil {
		return "", err
	}

	var body strings.Builder
	err = x.llm.GenerateInference(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: userPrompt}},
		func(chunk string) error {
			body.WriteString(chunk)
			return nil
		},
		llm.WithSystemPrompt(systemPrompt),
		llm.WithMaxTokens(400),
	)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(body.String())
	if text == "" {
		return "", fmt.Errorf("model returned an empty email body")
	}
	return text, nil
}

// sendAll sends to both recipients concurrently.
func (x *Escalator) sendAll(ctx context.Context, subject, body string) error {
	send := func(to string) <-chan async.Result[string] {
		return async.Go(func() (string, error) {
			return to, x.mailer.Send(ctx, to, subject, body)
		})
	}

	_, err := async.AwaitAll(send(x.escalationTo), send(x.oversightTo))
	return err
}

func aborted(stage, ticketID string, emailsSent bool, err error) error {
	logger.Error("Escalation aborted", zap.String("stage", stage), zap.String("ticket_id", ticketID), zap.Error(err))

	msg := fmt.Sprintf("escalation of ticket %s aborted at %s: %v", ticketID, stage, err)
	if emailsSent {
		msg += "; escalation emails may already have been delivered"
	}
	return status.Error(codes.Aborted, msg)
}
