package llm

import (
	"fmt"
	"time"
)

// FactoryConfig holds the parameters needed to create a Client.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai", "anthropic", or "ollama").
	Provider string
	// Temperature is the LLM temperature setting.
	Temperature float64
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
	// Ollama contains Ollama-specific settings.
	Ollama OllamaConfig
}

// NewClient creates a Client based on the configuration. Supports "openai",
// "anthropic", and "ollama" providers. Returns an error for unsupported or
// empty provider values.
func NewClient(cfg FactoryConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAI, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	case "anthropic":
		return NewAnthropicClient(cfg.Anthropic, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	case "ollama":
		return NewOllamaClient(cfg.Ollama, cfg.Temperature, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
