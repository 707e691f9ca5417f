package prompts

import (
	"bytes"
	"embed"
	"strings"
	"text/template"
)

//go:embed templates/*
var templatesFS embed.FS

func render(file string, data any) (string, error) {
	content, err := templatesFS.ReadFile("templates/" + file)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(file).Parse(string(content))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderPersona renders the assistant persona. structured appends the JSON answer contract.
func RenderPersona(structured bool) (string, error) {
	return render("persona.md", struct{ Structured bool }{structured})
}

// RenderTicketContext wraps the catalog digest for the session history.
func RenderTicketContext(digest string) (string, error) {
	return render("ticket_context.md", struct{ Digest string }{digest})
}

func RenderIdentifyPrompt(currentTicketID string) (string, error) {
	return render("identify.md", struct{ CurrentTicketID string }{currentTicketID})
}

func RenderAnnouncePrompt(ticketID string) (string, error) {
	return render("announce.md", struct{ TicketID string }{ticketID})
}

// RenderSimilarPrompt embeds the ticket in focus and one line per retrieved match.
func RenderSimilarPrompt(ticketID, ticket string, matches []string) (string, error) {
	return render("similar.md", struct {
		TicketID string
		Ticket   string
		Matches  []string
	}{ticketID, ticket, matches})
}

func RenderResolvePrompt(ticketID, ticket string, nativeTools bool) (string, error) {
	return render("resolve.md", struct {
		TicketID    string
		Ticket      string
		NativeTools bool
	}{ticketID, ticket, nativeTools})
}

// RenderEscalationEmailPrompt returns the system and user prompts for the email body.
func RenderEscalationEmailPrompt(ticketID, title, ticket string) (systemPrompt, userPrompt string, err error) {
	systemPrompt, err = render("escalation_email_system.md", nil)
	if err != nil {
		return "", "", err
	}

	userPrompt, err = render("escalation_email_user.md", struct {
		TicketID string
		Title    string
		Ticket   string
	}{ticketID, title, ticket})
	if err != nil {
		return "", "", err
	}
	return systemPrompt, userPrompt, nil
}

func RenderAskPrompt(question string) (string, error) {
	return render("ask.md", struct{ Question string }{question})
}
