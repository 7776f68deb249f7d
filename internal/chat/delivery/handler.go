package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	"github.com/hykura/mailmind/internal/chat/usecase"
)

// SourceSelector reports which corpus is currently active.
type SourceSelector interface {
	ActiveSource() emaildomain.Source
}

type ChatHandler struct {
	chatUsecase *usecase.ChatUsecase
	sessions    *usecase.SessionManager
	selector    SourceSelector
}

func NewChatHandler(chatUsecase *usecase.ChatUsecase, sessions *usecase.SessionManager, selector SourceSelector) *ChatHandler {
	return &ChatHandler{
		chatUsecase: chatUsecase,
		sessions:    sessions,
		selector:    selector,
	}
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req usecase.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	resp, err := h.chatUsecase.Chat(c.Request.Context(), h.selector.ActiveSource(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	sessionID := c.Param("id")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	turns, err := h.sessions.History(sessionID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "turns": turns})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}
