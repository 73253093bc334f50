package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default values for the Ollama provider.
const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.1"
)

// ollamaChatRequest is the request body for the Ollama chat API.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  ollamaOptions       `json:"options"`
}

// ollamaChatMessage represents a single chat message.
type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaOptions carries model generation options.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatResponse is the response body from the Ollama chat API.
type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

// OllamaClient implements Client against a local Ollama server.
type OllamaClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float64
}

// OllamaConfig holds the parameters needed to create an Ollama client.
type OllamaConfig struct {
	// BaseURL is the Ollama server base URL (empty means http://localhost:11434).
	BaseURL string
	// Model is the chat model name.
	Model string
}

// NewOllamaClient creates a client for a local Ollama server. Ollama has no
// rate limits so no retry loop is needed; the HTTP timeout is the only bound.
func NewOllamaClient(cfg OllamaConfig, temperature float64, timeout time.Duration) *OllamaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OllamaClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
	}
}

// Complete sends a non-streaming chat request to the Ollama server.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]ollamaChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: req.Prompt})

	apiReq := ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: c.temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.JSONMode {
		apiReq.Format = "json"
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Provider:   "ollama",
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to read response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Provider:   "ollama",
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("ollama: failed to unmarshal response: %w", err)
	}

	if resp.Message.Content == "" {
		return nil, fmt.Errorf("ollama: empty message content in response")
	}

	return &Response{
		Text:         resp.Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

// Provider returns the provider name.
func (c *OllamaClient) Provider() string {
	return "ollama"
}

// Model returns the model identifier being used.
func (c *OllamaClient) Model() string {
	return c.model
}
