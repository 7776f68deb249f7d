package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// GroqClient implements Completer against Groq's hosted, OpenAI-compatible
// chat completions API.
type GroqClient struct {
	client openai.Client
	model  string
}

func NewGroqClient(apiKey, baseURL, model string) *GroqClient {
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &GroqClient{client: client, model: model}
}

func (g *GroqClient) Name() string {
	return "groq/" + g.model
}

func (g *GroqClient) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &BackendError{
				Kind:    statusKind(apiErr.StatusCode),
				Backend: "groq",
				Message: apiErr.Error(),
			}
		}
		return "", classify("groq", err)
	}

	if len(completion.Choices) == 0 {
		return "", &BackendError{Kind: FailureModel, Backend: "groq", Message: "no completion returned"}
	}

	return completion.Choices[0].Message.Content, nil
}
