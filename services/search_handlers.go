package services

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/SaiNageswarS/support-agent/search"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultTopK = 10

func (s *Server) hybridSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("text_query"))
	embedding, err := parseEmbedding(q)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if text == "" && len(embedding) == 0 {
		writeError(w, http.StatusBadRequest, "text_query or embedding is required")
		return
	}
	topK, includeVector, err := parseSearchOptions(q, true)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}

	docs, err := s.index.HybridSearch(r.Context(), text, embedding, topK)
	writeDocuments(w, r, docs, includeVector, err)
}

func (s *Server) fullTextSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("text_query"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "text_query is required")
		return
	}
	topK, includeVector, err := parseSearchOptions(q, true)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}

	docs, err := s.index.FullTextSearch(r.Context(), text, topK)
	writeDocuments(w, r, docs, includeVector, err)
}

func (s *Server) vectorSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	embedding, err := parseEmbedding(q)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if len(embedding) == 0 {
		writeError(w, http.StatusBadRequest, "embedding is required")
		return
	}
	topK, includeVector, err := parseSearchOptions(q, true)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}

	docs, err := s.index.VectorSearch(r.Context(), embedding, topK)
	writeDocuments(w, r, docs, includeVector, err)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("doc_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "doc_id is required")
		return
	}
	includeVector, err := parseBool(q, "include_vector", true)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}

	doc, err := s.index.GetDocument(r.Context(), id)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document "+id+" not found")
		return
	}
	if !includeVector {
		search.StripVectors([]search.Document{doc})
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	batchSize, err := parseInt(q, "batch_size", 1000)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	limit, err := parseInt(q, "limit", 10)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	offset, err := parseInt(q, "offset", 0)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	includeVector, err := parseBool(q, "include_vector", false)
	if err != nil {
		writeStatusError(w, r, err)
		return
	}

	docs, err := s.index.ListDocuments(r.Context(), batchSize, limit, offset)
	writeDocuments(w, r, docs, includeVector, err)
}

func writeDocuments(w http.ResponseWriter, r *http.Request, docs []search.Document, includeVector bool, err error) {
	if err != nil {
		writeStatusError(w, r, err)
		return
	}
	if docs == nil {
		docs = []search.Document{}
	}
	if !includeVector {
		docs = search.StripVectors(docs)
	}
	writeJSON(w, http.StatusOK, docs)
}

func parseSearchOptions(q url.Values, includeVectorByDefault bool) (int, bool, error) {
	topK, err := parseInt(q, "top_k", defaultTopK)
	if err != nil {
		return 0, false, err
	}
	if topK <= 0 {
		return 0, false, status.Error(codes.InvalidArgument, "top_k must be positive")
	}
	includeVector, err := parseBool(q, "include_vector", includeVectorByDefault)
	return topK, includeVector, err
}

// parseEmbedding reads repeated embedding values, e.g. ?embedding=0.1&embedding=0.2.
func parseEmbedding(q url.Values) ([]float32, error) {
	values := q["embedding"]
	out := make([]float32, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid embedding value %q", v)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

func parseInt(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a non-negative integer", key)
	}
	return n, nil
}

func parseBool(q url.Values, key string, def bool) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, status.Errorf(codes.InvalidArgument, "%s must be a boolean", key)
	}
	return b, nil
}
