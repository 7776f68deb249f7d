package llm

import "context"

// Completer is the single capability the rest of the system needs from an
// inference backend: one prompt in, one text completion out.
// Implement this interface to add new backends (Ollama, Groq, ...).
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Name identifies the backend and model, e.g. "ollama/llama3.1:8b".
	Name() string
}

// ProviderType represents the inference backend type
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderGroq   ProviderType = "groq"
)
