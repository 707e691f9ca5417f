package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/embed"
	"github.com/SaiNageswarS/go-collection-boot/async"
)

// Embedder turns text into dense vectors for the ticket index.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type AzureOpenAIEmbedder struct {
	httpClient *http.Client
	url        string
	apiKey     string
}

func NewAzureOpenAIEmbedder(endpoint, deployment, apiVersion, apiKey string) (*AzureOpenAIEmbedder, error) {
	if endpoint == "" || deployment == "" {
		return nil, errors.New("azure openai endpoint and embedding deployment are required")
	}
	if apiKey == "" {
		return nil, errors.New("azure openai api key is not set")
	}

	return &AzureOpenAIEmbedder{
		httpClient: &http.Client{},
		url: fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			strings.TrimRight(endpoint, "/"), deployment, apiVersion),
		apiKey: apiKey,
	}, nil
}

func (e *AzureOpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonData, err := json.Marshal(embeddingRequest{Input: texts})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response embeddingResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range response.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// OllamaEmbedder batches go-api-boot's Ollama embedding client, which embeds one
// text per call. The server comes from OLLAMA_HOST.
type OllamaEmbedder struct {
	embedder embed.Embedder
	model    string
}

func NewOllamaEmbedder(model string) (*OllamaEmbedder, error) {
	if os.Getenv("OLLAMA_HOST") == "" {
		return nil, errors.New("OLLAMA_HOST is not set")
	}
	return NewOllamaEmbedderWith(embed.ProvideOllamaEmbeddingClient(), model), nil
}

func NewOllamaEmbedderWith(embedder embed.Embedder, model string) *OllamaEmbedder {
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedder{embedder: embedder, model: model}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	pending := make([]<-chan async.Result[[]float32], len(texts))
	for i, text := range texts {
		pending[i] = e.embedder.GetEmbedding(ctx, text, embed.WithModel(e.model))
	}

	vectors, err := async.AwaitAll(pending...)
	if err != nil {
		return nil, fmt.Errorf("error generating ollama embeddings: %w", err)
	}
	return vectors, nil
}
