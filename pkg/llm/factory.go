package llm

import (
	"fmt"

	"github.com/hykura/mailmind/pkg/config"
)

// NewCompleter creates a Completer based on the configured provider.
// Switch inference backend by changing LLM_PROVIDER, not code.
func NewCompleter(cfg *config.Config) (Completer, error) {
	switch ProviderType(cfg.LLMProvider) {
	case ProviderOllama:
		return NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	case ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY is required for the groq provider")
		}
		return NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
