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

// DefaultEmbeddingDimension is the vector dimension of the default
// all-MiniLM-class embedding models.
const DefaultEmbeddingDimension = 384

// Embedder produces fixed-dimension embedding vectors for text.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Provider returns the embedding provider name.
	Provider() string
}

// EmbedderFactoryConfig holds the parameters needed to create an Embedder.
type EmbedderFactoryConfig struct {
	// Provider is the embedding provider name ("openai" or "ollama").
	Provider string
	// Model is the embedding model name.
	Model string
	// Dimension is the embedding vector dimension.
	Dimension int
	// Timeout is the timeout for embedding API calls.
	Timeout time.Duration
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
	// Ollama contains Ollama-specific settings.
	Ollama OllamaConfig
}

// NewEmbedder creates an Embedder based on the factory configuration.
func NewEmbedder(cfg EmbedderFactoryConfig) (Embedder, error) {
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	switch cfg.Provider {
	case "openai":
		return newOpenAIEmbedder(cfg.OpenAI, cfg.Model, dimension, timeout), nil
	case "ollama":
		return newOllamaEmbedder(cfg.Ollama, cfg.Model, dimension, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q (supported: openai, ollama)", cfg.Provider)
	}
}

// openAIEmbedder implements Embedder using the OpenAI Embeddings API.
type openAIEmbedder struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	dimension  int
}

func newOpenAIEmbedder(cfg OpenAIConfig, model string, dimension int, timeout time.Duration) *openAIEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &openAIEmbedder{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
	}
}

// embeddingsRequest is the OpenAI Embeddings API request body. Dimensions is
// set so matryoshka-capable models produce vectors matching the configured
// collection size.
type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingsResponse is the OpenAI Embeddings API response body.
type embeddingsResponse struct {
	Data []embeddingDatum `json:"data"`
}

// embeddingDatum is a single embedding result.
type embeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingsRequest{
		Model:      e.model,
		Input:      texts,
		Dimensions: e.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal embeddings request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create embeddings request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Provider:   "openai",
			StatusCode: 0,
			Message:    fmt.Sprintf("embeddings request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to read embeddings response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseOpenAIAPIError(httpResp.StatusCode, respBody)
	}

	var resp embeddingsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("openai: failed to unmarshal embeddings response: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return data out of order; index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, datum := range resp.Data {
		if datum.Index < 0 || datum.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", datum.Index)
		}
		vectors[datum.Index] = datum.Embedding
	}
	return vectors, nil
}

func (e *openAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *openAIEmbedder) Provider() string {
	return "openai"
}

// ollamaEmbedder implements Embedder against a local Ollama server.
type ollamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dimension  int
}

func newOllamaEmbedder(cfg OllamaConfig, model string, dimension int, timeout time.Duration) *ollamaEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = "all-minilm"
	}
	return &ollamaEmbedder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
	}
}

// ollamaEmbedRequest is the Ollama embed API request body.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the Ollama embed API response body.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{
			Provider:   "ollama",
			StatusCode: 0,
			Message:    fmt.Sprintf("embed request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to read embed response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Provider:   "ollama",
			StatusCode: httpResp.StatusCode,
			Message:    string(respBody),
		}
	}

	var resp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("ollama: failed to unmarshal embed response: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	return resp.Embeddings, nil
}

func (e *ollamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *ollamaEmbedder) Provider() string {
	return "ollama"
}
