package services

import (
	"context"
	"net/http"
	"time"

	"github.com/SaiNageswarS/go-api-boot/server"
	"github.com/SaiNageswarS/support-agent/memory"
	"github.com/SaiNageswarS/support-agent/search"
	"github.com/SaiNageswarS/support-agent/tickets"
	"github.com/SaiNageswarS/support-agent/workers"
	"github.com/SaiNageswarS/support-agent/workflow"
)

const maxBodyBytes = 1 << 20

// WorkflowEngine runs workflow steps and free-form questions for a session.
type WorkflowEngine interface {
	Run(ctx context.Context, sessionID string, step workflow.Step, question string) (*workflow.Result, error)
	Ask(ctx context.Context, sessionID, question string) (string, error)
}

// SessionStore reads and clears sessions. Every call waits for any in-flight
// workflow step on the same session.
type SessionStore interface {
	Snapshot(ctx context.Context, sessionID string) (*memory.Conversation, error)
	List(ctx context.Context) ([]string, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

type TicketStore interface {
	Save(t tickets.Ticket) (string, error)
	Get(id string) (tickets.Ticket, error)
	Delete(id string) error
	ListRecent() ([]tickets.Ticket, error)
	Dir() string
}

// CatalogRefresher rebuilds the ticket digest after the ticket directory changes.
type CatalogRefresher interface {
	Refresh() error
}

// SearchIndex is the raw document surface of the hosted search index.
type SearchIndex interface {
	HybridSearch(ctx context.Context, text string, embedding []float32, topK int) ([]search.Document, error)
	FullTextSearch(ctx context.Context, text string, topK int) ([]search.Document, error)
	VectorSearch(ctx context.Context, embedding []float32, topK int) ([]search.Document, error)
	GetDocument(ctx context.Context, id string) (search.Document, error)
	ListDocuments(ctx context.Context, batchSize, limit, offset int) ([]search.Document, error)
}

type TicketImporter interface {
	ImportFile(ctx context.Context, filename string) (*workers.IndexSummary, error)
}

// Server exposes the assistant as HTTP routes on the boot server.
type Server struct {
	engine   WorkflowEngine
	sessions SessionStore
	tickets  TicketStore
	catalog  CatalogRefresher
	index    SearchIndex
	importer TicketImporter

	metrics HTTPRecorder
	timeout time.Duration
	limiter *rateLimiter

	newSessionID func() string
}

type route struct {
	pattern string
	handler http.HandlerFunc
	limited bool
}

func (s *Server) routes() []route {
	return []route{
		{pattern: "POST /support_workflow", handler: s.supportWorkflow, limited: true},
		{pattern: "POST /ask", handler: s.ask, limited: true},

		{pattern: "GET /refresh_session_id", handler: s.refreshSessionID},
		{pattern: "POST /clear_session", handler: s.clearSession},
		{pattern: "GET /session_history", handler: s.sessionHistory},
		{pattern: "GET /count_session_ids", handler: s.countSessionIDs},
		{pattern: "GET /list_session_ids", handler: s.listSessionIDs},

		{pattern: "POST /tickets", handler: s.createTicket},
		{pattern: "GET /tickets", handler: s.listTickets},
		{pattern: "GET /tickets/{id}", handler: s.getTicket},
		{pattern: "DELETE /tickets/{id}", handler: s.deleteTicket},
		{pattern: "GET /ticket_files/{file}", handler: s.ticketFile},

		{pattern: "GET /hybrid_search", handler: s.hybridSearch},
		{pattern: "GET /fulltext_search", handler: s.fullTextSearch},
		{pattern: "GET /vector_search", handler: s.vectorSearch},
		{pattern: "GET /get_document", handler: s.getDocument},
		{pattern: "GET /list_documents", handler: s.listDocuments},
		{pattern: "POST /import_historical_tickets", handler: s.importHistoricalTickets},
	}
}

// Routes returns every endpoint keyed by its method pattern. Each handler records
// metrics and bounds the request context; LLM-backed routes are also rate limited
// per client.
func (s *Server) Routes() map[string]http.HandlerFunc {
	out := make(map[string]http.HandlerFunc)
	for _, rt := range s.routes() {
		h := rt.handler
		if rt.limited {
			h = s.limiter.limit(h)
		}
		h = withTimeout(s.timeout, h)
		if s.metrics != nil {
			h = withMetrics(s.metrics, rt.pattern, h)
		}
		out[rt.pattern] = h
	}
	return out
}

// Mount registers the routes on b. The boot server itself serves /health and the
// default Prometheus registry at /metrics.
func (s *Server) Mount(b *server.Builder) *server.Builder {
	for pattern, h := range s.Routes() {
		b.Handle(pattern, h)
	}
	return b
}

// Stop releases the rate limiter's cleanup goroutine.
func (s *Server) Stop() {
	s.limiter.stop()
}
