// Package llm provides LLM provider clients and the typed language-model
// capabilities used by document ingestion and literature review synthesis.
package llm

import "context"

// Request is a single completion request to an LLM provider.
type Request struct {
	// System is the system prompt (may be empty).
	System string
	// Prompt is the user prompt.
	Prompt string
	// MaxTokens caps the response length. Zero means the provider default.
	MaxTokens int
	// JSONMode requests a JSON object response where the provider supports it.
	JSONMode bool
}

// Response is a completion response from an LLM provider.
type Response struct {
	// Text is the response text content.
	Text string
	// Model is the model that produced the response.
	Model string
	// InputTokens is the number of prompt tokens consumed.
	InputTokens int
	// OutputTokens is the number of completion tokens produced.
	OutputTokens int
}

// Client is the interface implemented by LLM provider clients.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Provider returns the name of the LLM provider.
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}
