package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ollama/ollama/api"
)

// OpenAIClient talks to the chat-completions API shared by Azure OpenAI,
// OpenAI and compatible hosts (Groq, OpenRouter, ...).
type OpenAIClient struct {
	httpClient *http.Client
	url        string
	model      string
	authHeader string
	authValue  string
}

// NewAzureOpenAIClient targets a deployment of an Azure OpenAI resource.
func NewAzureOpenAIClient(endpoint, deployment, apiVersion, apiKey string) (*OpenAIClient, error) {
	if endpoint == "" || deployment == "" {
		return nil, errors.New("azure openai endpoint and deployment are required")
	}
	if apiKey == "" {
		return nil, errors.New("azure openai api key is not set")
	}

	return &OpenAIClient{
		httpClient: &http.Client{},
		url: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(endpoint, "/"), deployment, apiVersion),
		model:      deployment,
		authHeader: "api-key",
		authValue:  apiKey,
	}, nil
}

// NewOpenAIClient targets any OpenAI-compatible base URL, e.g. https://api.openai.com/v1.
func NewOpenAIClient(baseURL, model, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o"
	}

	return &OpenAIClient{
		httpClient: &http.Client{},
		url:        strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:      model,
		authHeader: "Authorization",
		authValue:  "Bearer " + apiKey,
	}, nil
}

func (c *OpenAIClient) Capabilities() Capability {
	return NativeToolCalling | JSONResponseFormat
}

func (c *OpenAIClient) GetModel() string {
	return c.model
}

func (c *OpenAIClient) GenerateInference(ctx context.Context, messages []Message, callback func(chunk string) error, opts ...LLMOption) error {
	settings := defaultSettings(c.model)
	applyOptions(&settings, opts)

	return c.makeRequest(ctx, c.buildRequest(settings, messages), callback, nil)
}

func (c *OpenAIClient) GenerateInferenceWithTools(
	ctx context.Context,
	messages []Message,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
	opts ...LLMOption,
) error {
	settings := defaultSettings(c.model)
	applyOptions(&settings, opts)

	request := c.buildRequest(settings, messages)
	request.Tools = convertToolsToOpenAIFormat(settings.tools)
	if len(request.Tools) > 0 {
		request.ToolChoice = "auto"
	}

	return c.makeRequest(ctx, request, contentCallback, toolCallback)
}

func (c *OpenAIClient) buildRequest(settings LLMSettings, messages []Message) openAIRequest {
	request := openAIRequest{
		Model:       settings.model,
		Temperature: settings.temperature,
		MaxTokens:   settings.maxTokens,
	}

	// The system prompt travels as the first message.
	if settings.system != "" {
		request.Messages = append(request.Messages, openAIMessage{Role: RoleSystem, Content: settings.system})
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	if settings.jsonResponse {
		request.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return request
}

func (c *OpenAIClient) makeRequest(
	ctx context.Context,
	request openAIRequest,
	contentCallback func(chunk string) error,
	toolCallback func(toolCalls []api.ToolCall) error,
) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.authHeader, c.authValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}

	if len(response.Choices) == 0 {
		return fmt.Errorf("no choices in response")
	}

	choice := response.Choices[0]

	if len(choice.Message.ToolCalls) > 0 && toolCallback != nil {
		toolCalls := make([]api.ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return fmt.Errorf("error parsing tool call arguments: %w", err)
				}
			}

			toolCalls[i] = api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: args,
				},
			}
		}
		if err := toolCallback(toolCalls); err != nil {
			return err
		}
	}

	if choice.Message.Content != "" && contentCallback != nil {
		return contentCallback(choice.Message.Content)
	}

	return nil
}

func convertToolsToOpenAIFormat(tools []api.Tool) []openAITool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]openAITool, len(tools))
	for i, tool := range tools {
		out[i] = openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		}
		// Providers reject an empty parameter schema.
		if tool.Function.Parameters.Type == "" {
			out[i].Function.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
	}
	return out
}

// Chat completions wire types
type openAIRequest struct {
	Model          string                `json:"model,omitempty"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ToolChoice     string                `json:"tool_choice,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function openAIToolCallFunction `json:"function"`
}

type openAIToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
