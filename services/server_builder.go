package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type ServerBuilder struct {
	server            *Server
	requestsPerMinute int
}

func NewServerBuilder() *ServerBuilder {
	return &ServerBuilder{
		server: &Server{
			newSessionID: func() string { return uuid.NewString() },
		},
		requestsPerMinute: 30,
	}
}

func (b *ServerBuilder) WithEngine(engine WorkflowEngine, sessions SessionStore) *ServerBuilder {
	b.server.engine = engine
	b.server.sessions = sessions
	return b
}

func (b *ServerBuilder) WithTickets(store TicketStore, catalog CatalogRefresher) *ServerBuilder {
	b.server.tickets = store
	b.server.catalog = catalog
	return b
}

func (b *ServerBuilder) WithSearchIndex(index SearchIndex) *ServerBuilder {
	b.server.index = index
	return b
}

func (b *ServerBuilder) WithImporter(importer TicketImporter) *ServerBuilder {
	b.server.importer = importer
	return b
}

// WithMetrics records every request served by the routes.
func (b *ServerBuilder) WithMetrics(recorder HTTPRecorder) *ServerBuilder {
	b.server.metrics = recorder
	return b
}

func (b *ServerBuilder) WithRequestTimeout(timeout time.Duration) *ServerBuilder {
	b.server.timeout = timeout
	return b
}

func (b *ServerBuilder) WithRateLimit(requestsPerMinute int) *ServerBuilder {
	if requestsPerMinute > 0 {
		b.requestsPerMinute = requestsPerMinute
	}
	return b
}

func (b *ServerBuilder) Build() (*Server, error) {
	s := b.server
	switch {
	case s.engine == nil || s.sessions == nil:
		return nil, errors.New("workflow engine and session store are required")
	case s.tickets == nil || s.catalog == nil:
		return nil, errors.New("ticket store and catalog are required")
	case s.index == nil:
		return nil, errors.New("search index is required")
	case s.importer == nil:
		return nil, errors.New("ticket importer is required")
	}

	s.limiter = newRateLimiter(b.requestsPerMinute)
	return s, nil
}
