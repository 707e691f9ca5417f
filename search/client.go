package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/support-agent/llm"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	KeyField    = "id"
	VectorField = "vector"
	scoreField  = "@search.score"
)

// Document is one search index entry as returned by the service.
type Document map[string]any

// Client is a REST client for an Azure AI Search index.
type Client struct {
	httpClient *http.Client
	baseURL    string
	index      string
	apiKey     string
	apiVersion string
	embedder   llm.Embedder
}

func NewClient(serviceURL, index, apiKey, apiVersion string, embedder llm.Embedder) (*Client, error) {
	if serviceURL == "" || index == "" {
		return nil, errors.New("search service url and index are required")
	}
	if apiKey == "" {
		return nil, errors.New("search api key is not set")
	}

	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(serviceURL, "/"),
		index:      index,
		apiKey:     apiKey,
		apiVersion: apiVersion,
		embedder:   embedder,
	}, nil
}

// HybridSearch combines keyword and vector similarity. Either input may be empty.
func (c *Client) HybridSearch(ctx context.Context, text string, embedding []float32, topK int) ([]Document, error) {
	if text == "" {
		text = "*"
	}
	body := map[string]any{"search": text, "top": topK}
	if len(embedding) > 0 {
		body["vectorQueries"] = vectorQueries(embedding, topK)
	}
	return c.search(ctx, body)
}

func (c *Client) FullTextSearch(ctx context.Context, text string, topK int) ([]Document, error) {
	return c.search(ctx, map[string]any{"search": text, "top": topK})
}

func (c *Client) VectorSearch(ctx context.Context, embedding []float32, topK int) ([]Document, error) {
	return c.search(ctx, map[string]any{"vectorQueries": vectorQueries(embedding, topK)})
}

// GetDocument returns nil without error when the key does not exist.
func (c *Client) GetDocument(ctx context.Context, id string) (Document, error) {
	endpoint := fmt.Sprintf("%s/indexes/%s/docs/%s?api-version=%s",
		c.baseURL, c.index, url.PathEscape(id), c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	body, code, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if code == http.StatusNotFound {
		return nil, nil
	}
	if code != http.StatusOK {
		return nil, upstreamError(code, body)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, status.Error(codes.DataLoss, "search service returned malformed document")
	}
	return doc, nil
}

// ListDocuments pages through the index in batches. A limit of 0 lists everything.
func (c *Client) ListDocuments(ctx context.Context, batchSize, limit, offset int) ([]Document, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var all []Document
	skip := offset
	for {
		top := batchSize
		if limit > 0 {
			remaining := limit - len(all)
			if remaining <= 0 {
				break
			}
			top = min(batchSize, remaining)
		}

		docs, err := c.search(ctx, map[string]any{"search": "*", "select": "*", "top": top, "skip": skip})
		if err != nil {
			return nil, err
		}
		all = append(all, docs...)
		if len(docs) < top {
			break
		}
		skip += top
	}
	return all, nil
}

// UploadDocument upserts one document with its vector and metadata.
func (c *Client) UploadDocument(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	doc := map[string]any{"@search.action": "upload", KeyField: id, VectorField: embedding}
	for k, v := range metadata {
		if k == KeyField || k == VectorField {
			continue
		}
		if _, reserved := doc[k]; reserved {
			return status.Errorf(codes.InvalidArgument, "metadata key %q conflicts with a reserved field", k)
		}
		doc[k] = v
	}

	payload, err := json.Marshal(map[string]any{"value": []any{doc}})
	if err != nil {
		return fmt.Errorf("error marshaling document: %w", err)
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", c.baseURL, c.index, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, code, err := c.do(req)
	if err != nil {
		return err
	}
	if code != http.StatusOK && code != http.StatusCreated {
		return upstreamError(code, body)
	}

	var result struct {
		Value []struct {
			Key          string `json:"key"`
			Status       bool   `json:"status"`
			ErrorMessage string `json:"errorMessage"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return status.Error(codes.DataLoss, "search service returned malformed upload result")
	}
	if len(result.Value) == 0 || !result.Value[0].Status {
		msg := "empty upload result"
		if len(result.Value) > 0 {
			msg = result.Value[0].ErrorMessage
		}
		return status.Errorf(codes.Unavailable, "upload of %s failed: %s", id, msg)
	}
	return nil
}

// Search implements Searcher. The query text is embedded when an embedder is configured
// and no vector was supplied, turning the request into a hybrid search.
func (c *Client) Search(ctx context.Context, q Query) ([]Match, error) {
	embedding := q.Embedding
	if len(embedding) == 0 && c.embedder != nil && q.Text != "" {
		vectors, err := c.embedder.Embed(ctx, []string{q.Text})
		if err != nil {
			logger.Error("Failed to embed search query", zap.Error(err))
			return nil, status.Error(codes.Unavailable, "embedding service failed")
		}
		if len(vectors) > 0 {
			embedding = vectors[0]
		}
	}

	docs, err := c.HybridSearch(ctx, q.Text, embedding, q.TopK)
	if err != nil {
		return nil, err
	}
	return ToMatches(docs), nil
}

func (c *Client) search(ctx context.Context, body map[string]any) ([]Document, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling search request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.baseURL, c.index, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, code, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, upstreamError(code, respBody)
	}

	var result struct {
		Value []Document `json:"value"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, status.Error(codes.DataLoss, "search service returned malformed results")
	}
	return result.Value, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, status.Error(codes.DeadlineExceeded, "search request timed out")
		}
		logger.Error("Search request failed", zap.String("url", req.URL.Path), zap.Error(err))
		return nil, 0, status.Error(codes.Unavailable, "search service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, status.Error(codes.Unavailable, "error reading search response")
	}
	return body, resp.StatusCode, nil
}

func upstreamError(code int, body []byte) error {
	logger.Error("Search service error", zap.Int("status", code), zap.String("body", string(body)))
	return status.Errorf(codes.Unavailable, "search service returned status %d", code)
}

func vectorQueries(embedding []float32, topK int) []map[string]any {
	return []map[string]any{{
		"kind":   "vector",
		"fields": VectorField,
		"vector": embedding,
		"k":      topK,
	}}
}
