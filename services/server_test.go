package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SaiNageswarS/go-api-boot/server"
	"github.com/SaiNageswarS/support-agent/memory"
	"github.com/SaiNageswarS/support-agent/metrics"
	"github.com/SaiNageswarS/support-agent/search"
	"github.com/SaiNageswarS/support-agent/tickets"
	"github.com/SaiNageswarS/support-agent/workers"
	"github.com/SaiNageswarS/support-agent/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type mockEngine struct {
	callCount int
	sessionID string
	step      workflow.Step
	question  string
	result    *workflow.Result
	answer    string
	err       error
	block     bool
}

func (m *mockEngine) Run(ctx context.Context, sessionID string, step workflow.Step, question string) (*workflow.Result, error) {
	m.callCount++
	m.sessionID, m.step, m.question = sessionID, step, question
	if m.block {
		<-ctx.Done()
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	res.SessionID = sessionID
	return &res, nil
}

func (m *mockEngine) Ask(ctx context.Context, sessionID, question string) (string, error) {
	m.callCount++
	m.sessionID, m.question = sessionID, question
	return m.answer, m.err
}

type mockIndex struct {
	docs      []search.Document
	text      string
	embedding []float32
	topK      int
	err       error
}

func (m *mockIndex) HybridSearch(ctx context.Context, text string, embedding []float32, topK int) ([]search.Document, error) {
	m.text, m.embedding, m.topK = text, embedding, topK
	return m.docs, m.err
}

func (m *mockIndex) FullTextSearch(ctx context.Context, text string, topK int) ([]search.Document, error) {
	m.text, m.topK = text, topK
	return m.docs, m.err
}

func (m *mockIndex) VectorSearch(ctx context.Context, embedding []float32, topK int) ([]search.Document, error) {
	m.embedding, m.topK = embedding, topK
	return m.docs, m.err
}

func (m *mockIndex) GetDocument(ctx context.Context, id string) (search.Document, error) {
	for _, doc := range m.docs {
		if doc["id"] == id {
			return doc, nil
		}
	}
	return nil, m.err
}

func (m *mockIndex) ListDocuments(ctx context.Context, batchSize, limit, offset int) ([]search.Document, error) {
	return m.docs, m.err
}

type mockImporter struct {
	filename string
	summary  *workers.IndexSummary
	err      error
}

func (m *mockImporter) ImportFile(ctx context.Context, filename string) (*workers.IndexSummary, error) {
	m.filename = filename
	return m.summary, m.err
}

type testServer struct {
	server   *Server
	handler  http.Handler
	engine   *mockEngine
	sessions *memory.ConversationManager
	store    *tickets.Store
	catalog  *tickets.Catalog
	index    *mockIndex
	importer *mockImporter
	metrics  *metrics.Collector
}

func newTestServer(t *testing.T, opts ...func(*ServerBuilder)) *testServer {
	t.Helper()

	store, err := tickets.NewStore(t.TempDir())
	require.NoError(t, err)

	ts := &testServer{
		engine: &mockEngine{result: &workflow.Result{
			Answer:   workflow.Answer{Answer: "Found it", ContextTicketID: "42"},
			NextStep: workflow.StepAnnounce,
		}},
		sessions: memory.NewConversationManager(memory.NewInMemoryStore(), 0),
		store:    store,
		catalog:  tickets.NewCatalog(store),
		index:    &mockIndex{},
		importer: &mockImporter{summary: &workers.IndexSummary{Rows: 3, Tickets: 2, Uploaded: 2}},
		metrics:  metrics.NewCollector(prometheus.NewRegistry()),
	}

	b := NewServerBuilder().
		WithEngine(ts.engine, ts.sessions).
		WithTickets(ts.store, ts.catalog).
		WithSearchIndex(ts.index).
		WithImporter(ts.importer).
		WithMetrics(ts.metrics)
	for _, opt := range opts {
		opt(b)
	}
	b.server.newSessionID = func() string { return "generated-id" }

	srv, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	mux := http.NewServeMux()
	for pattern, h := range srv.Routes() {
		mux.HandleFunc(pattern, h)
	}
	ts.server = srv
	ts.handler = mux
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSupportWorkflow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/support_workflow?session_id=s1&support_workflow_step=1", `{"question":"My VPN is down"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Found it", body["answer"])
	assert.Equal(t, "42", body["context_ticket_id"])
	assert.Equal(t, float64(2), body["next_workflow_action_step"])
	assert.Equal(t, "s1", body["session_id"])
	assert.NotContains(t, body, "function_call")

	assert.Equal(t, "s1", ts.engine.sessionID)
	assert.Equal(t, workflow.StepIdentify, ts.engine.step)
	assert.Equal(t, "My VPN is down", ts.engine.question)
}

func TestSupportWorkflow_GeneratesSessionID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/support_workflow?support_workflow_step=3", `{"question":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generated-id", decode[map[string]any](t, rec)["session_id"])
	assert.Equal(t, workflow.StepSimilar, ts.engine.step)
}

func TestSupportWorkflow_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/support_workflow?support_workflow_step=two", `{"question":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/support_workflow?support_workflow_step=1", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "invalid request body")

	assert.Equal(t, 0, ts.engine.callCount)
}

func TestSupportWorkflow_ErrorMapping(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.InvalidArgument, http.StatusBadRequest},
		{codes.NotFound, http.StatusNotFound},
		{codes.FailedPrecondition, http.StatusConflict},
		{codes.DeadlineExceeded, http.StatusGatewayTimeout},
		{codes.Unavailable, http.StatusBadGateway},
		{codes.DataLoss, http.StatusBadGateway},
		{codes.Aborted, http.StatusInternalServerError},
		{codes.Internal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			ts := newTestServer(t)
			ts.engine.err = status.Error(tt.code, "boom")

			rec := ts.do(http.MethodPost, "/support_workflow?session_id=s1&support_workflow_step=4", `{"question":"q"}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, map[string]string{"error": "boom"}, decode[map[string]string](t, rec))
		})
	}
}

func TestSupportWorkflow_RequestTimeout(t *testing.T) {
	ts := newTestServer(t, func(b *ServerBuilder) { b.WithRequestTimeout(20 * time.Millisecond) })
	ts.engine.block = true

	rec := ts.do(http.MethodPost, "/support_workflow?session_id=s1&support_workflow_step=1", `{"question":"q"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(b *ServerBuilder) { b.WithRateLimit(2) })

	for range 2 {
		rec := ts.do(http.MethodPost, "/ask?session_id=s1", `{"question":"q"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(http.MethodPost, "/ask?session_id=s1", `{"question":"q"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, ts.engine.callCount)

	// non-LLM routes are not limited
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/refresh_session_id", "").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.HTTPRequestsTotal.WithLabelValues("POST", "/ask", "429")))
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.answer = "Restart the router."

	rec := ts.do(http.MethodPost, "/ask", `{"question":"VPN?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"answer": "Restart the router.", "session_id": "generated-id"}, decode[map[string]string](t, rec))
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/refresh_session_id", "")
	assert.Equal(t, map[string]string{"session_id": "generated-id"}, decode[map[string]string](t, rec))

	rec = ts.do(http.MethodGet, "/session_history?session_id=s1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	conv, err := ts.sessions.History(context.Background(), "s1")
	require.NoError(t, err)
	conv.AddUserMessage("hello")
	require.NoError(t, ts.sessions.Save(context.Background(), conv))

	rec = ts.do(http.MethodGet, "/session_history?session_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]map[string]any](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0]["content"])

	rec = ts.do(http.MethodPost, "/clear_session?session_id=s1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/session_history?session_id=s1", "").Code)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/clear_session", "").Code)
}

func TestSessionIDEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/count_session_ids", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"count": 0}, decode[map[string]int](t, rec))

	rec = ts.do(http.MethodGet, "/list_session_ids", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]string{"session_ids": {}}, decode[map[string][]string](t, rec))

	for _, id := range []string{"s2", "s1"} {
		_, err := ts.sessions.History(context.Background(), id)
		require.NoError(t, err)
	}

	rec = ts.do(http.MethodGet, "/count_session_ids", "")
	assert.Equal(t, map[string]int{"count": 2}, decode[map[string]int](t, rec))

	rec = ts.do(http.MethodGet, "/list_session_ids", "")
	assert.Equal(t, map[string][]string{"session_ids": {"s1", "s2"}}, decode[map[string][]string](t, rec))

	ts.do(http.MethodPost, "/clear_session?session_id=s1", "")
	rec = ts.do(http.MethodGet, "/list_session_ids", "")
	assert.Equal(t, map[string][]string{"session_ids": {"s2"}}, decode[map[string][]string](t, rec))
}

func TestSessionHistory_WaitsForInFlightStep(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	conv, err := ts.sessions.History(ctx, "s1")
	require.NoError(t, err)
	conv.AddUserMessage("hello")
	require.NoError(t, ts.sessions.Save(ctx, conv))

	unlock := ts.sessions.Lock("s1")
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- ts.do(http.MethodGet, "/session_history?session_id=s1", "") }()

	select {
	case <-done:
		t.Fatal("history was read while the session was held")
	case <-time.After(50 * time.Millisecond):
	}

	conv.AddAssistantMessage("hi")
	require.NoError(t, ts.sessions.Save(ctx, conv))
	unlock()

	rec := <-done
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)
}

func TestTicketEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/tickets", `{"title":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/tickets", `{"ticketID":"42","title":"VPN drops"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", decode[map[string]string](t, rec)["ticket_id"])
	assert.Equal(t, 1, ts.catalog.Len())

	rec = ts.do(http.MethodGet, "/tickets/42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VPN drops", decode[map[string]any](t, rec)["title"])

	rec = ts.do(http.MethodGet, "/tickets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "ticket_files/42.json", list[0]["path"])

	rec = ts.do(http.MethodGet, "/ticket_files/42.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", decode[map[string]any](t, rec)["ticketID"])
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/ticket_files/42.txt", "").Code)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodDelete, "/tickets/42", "").Code)
	assert.Equal(t, 0, ts.catalog.Len())

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/tickets/42", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/tickets/42", "").Code)
}

func TestSearchEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.index.docs = []search.Document{{"id": "1", "title": "VPN drops", "vector": []any{0.1, 0.2}}}

	rec := ts.do(http.MethodGet, "/hybrid_search?text_query=vpn&embedding=0.5&embedding=0.25&top_k=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vpn", ts.index.text)
	assert.Equal(t, []float32{0.5, 0.25}, ts.index.embedding)
	assert.Equal(t, 3, ts.index.topK)
	assert.Contains(t, decode[[]map[string]any](t, rec)[0], "vector")

	rec = ts.do(http.MethodGet, "/fulltext_search?text_query=vpn&include_vector=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultTopK, ts.index.topK)
	assert.NotContains(t, decode[[]map[string]any](t, rec)[0], "vector")

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/hybrid_search", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/vector_search?embedding=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/fulltext_search?text_query=x&top_k=0", "").Code)
}

func TestDocumentEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.index.docs = []search.Document{{"id": "1", "title": "VPN drops", "vector": []any{0.1}}}

	rec := ts.do(http.MethodGet, "/get_document?doc_id=1&include_vector=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"id": "1", "title": "VPN drops"}, decode[map[string]any](t, rec))

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/get_document?doc_id=missing", "").Code)

	ts.index.err = status.Error(codes.Unavailable, "search service returned 503")
	rec = ts.do(http.MethodGet, "/list_documents?limit=5", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestImportHistoricalTickets(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/import_historical_tickets?csv_filename=export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "export.csv", ts.importer.filename)
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["uploaded"])

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/import_historical_tickets", "").Code)

	ts.importer.err = status.Error(codes.NotFound, "csv file missing.csv not found")
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/import_historical_tickets?csv_filename=missing.csv", "").Code)
}

func TestRouteMetrics(t *testing.T) {
	ts := newTestServer(t)

	ts.do(http.MethodGet, "/tickets/7", "")
	ts.do(http.MethodGet, "/tickets/8", "")
	assert.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/tickets/{id}", "404")))

	ts.do(http.MethodGet, "/tickets", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/tickets", "200")))
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestMount_ServesRoutesOnBootServer(t *testing.T) {
	ts := newTestServer(t)
	httpAddr := freePort(t)

	boot, err := ts.server.Mount(server.New().GRPCPort(freePort(t)).HTTPPort(httpAddr)).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- boot.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	base := fmt.Sprintf("http://%s", httpAddr)
	get := func(path string) int {
		resp, err := http.Get(base + path)
		if err != nil {
			return 0
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Eventually(t, func() bool { return get("/health") == http.StatusOK }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, http.StatusOK, get("/metrics"))
	assert.Equal(t, http.StatusOK, get("/count_session_ids"))
	assert.Equal(t, http.StatusNotFound, get("/tickets/7"))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/tickets/{id}", "404")))
}

func TestServerBuilder_RequiresCollaborators(t *testing.T) {
	_, err := NewServerBuilder().Build()
	assert.Error(t, err)
}
