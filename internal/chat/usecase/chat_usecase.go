package usecase

import (
	"context"
	"fmt"
	"log"

	"github.com/hykura/mailmind/internal/chat/domain"
	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	"github.com/hykura/mailmind/pkg/llm"
)

// ChatRequest is one conversational turn against the active corpus.
type ChatRequest struct {
	Message        string   `json:"message" binding:"required"`
	FocusEmailID   string   `json:"focus_email_id,omitempty"`
	FocusThreadIDs []string `json:"focus_thread_ids,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	TopK           int      `json:"top_k,omitempty"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

const systemPrompt = `You are a helpful email assistant. Answer the user's question based on their emails, action items and email categories.

When responding about action items or tasks:
- List all action items with their deadlines if present
- Mention which email each action item comes from
- If asked about categories, mention the email category`

// ChatUsecase answers questions grounded in the mailbox. Context is rebuilt
// fresh for every turn; only the conversation text is persisted.
type ChatUsecase struct {
	builder   *ContextBuilder
	sessions  *SessionManager
	completer llm.Completer
}

func NewChatUsecase(builder *ContextBuilder, sessions *SessionManager, completer llm.Completer) *ChatUsecase {
	return &ChatUsecase{
		builder:   builder,
		sessions:  sessions,
		completer: completer,
	}
}

func (u *ChatUsecase) Chat(ctx context.Context, source emaildomain.Source, req *ChatRequest) (*ChatResponse, error) {
	// Thread focus wins over a single-email focus when both are sent.
	focusIDs := req.FocusThreadIDs
	if len(focusIDs) == 0 && req.FocusEmailID != "" {
		focusIDs = []string{req.FocusEmailID}
	}

	sessionID, err := u.sessions.Append(req.SessionID, domain.RoleUser, req.Message)
	if err != nil {
		return nil, err
	}

	contextText, err := u.builder.Build(ctx, source, req.Message, focusIDs, req.TopK)
	if err != nil {
		// Retrieval being down still leaves a usable general answer.
		log.Printf("[Chat] Context build failed, answering without retrieval: %v", err)
		contextText = "Context: the user is asking about their inbox in general.\n"
	}

	prompt := fmt.Sprintf("%s\n\n%s\nUser Question: %s\n\nAnswer the question directly and concisely.\n\nAnswer:",
		systemPrompt, contextText, req.Message)

	answer, err := u.completer.Complete(ctx, prompt)
	if err != nil {
		// Degrade to an apology carrying the backend's message instead of
		// failing the request.
		log.Printf("[Chat] Completion failed: %v", err)
		answer = fmt.Sprintf("Sorry, I could not reach the inference backend (%v). Please try again.", err)
	}

	if _, err := u.sessions.Append(sessionID, domain.RoleAssistant, answer); err != nil {
		return nil, err
	}

	return &ChatResponse{Response: answer, SessionID: sessionID}, nil
}
