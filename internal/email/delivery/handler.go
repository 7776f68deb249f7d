package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hykura/mailmind/internal/email/domain"
	"github.com/hykura/mailmind/internal/email/dto"
	"github.com/hykura/mailmind/internal/email/usecase"
)

// SourceSelector reports which corpus is currently active.
type SourceSelector interface {
	ActiveSource() domain.Source
}

type EmailHandler struct {
	emailUsecase *usecase.EmailUsecase
	counter      Counter
	selector     SourceSelector
	inboxFile    string
}

// Counter exposes corpus size for list responses.
type Counter interface {
	CountBySource(source domain.Source) (int64, error)
}

func NewEmailHandler(emailUsecase *usecase.EmailUsecase, counter Counter, selector SourceSelector, inboxFile string) *EmailHandler {
	return &EmailHandler{
		emailUsecase: emailUsecase,
		counter:      counter,
		selector:     selector,
		inboxFile:    inboxFile,
	}
}

type loadInboxRequest struct {
	Path string `json:"path"`
}

// LoadInbox seeds the local corpus from a JSON file. The configured inbox
// file is used unless the request names another path.
func (h *EmailHandler) LoadInbox(c *gin.Context) {
	path := h.inboxFile
	var req loadInboxRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Path != "" {
		path = req.Path
	}
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no inbox file configured"})
		return
	}

	loaded, err := h.emailUsecase.LoadLocalInbox(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"loaded": loaded, "path": path})
}

func (h *EmailHandler) ListEmails(c *gin.Context) {
	source := h.selector.ActiveSource()

	limit := 50
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	emails, err := h.emailUsecase.ListEmails(source, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total, err := h.counter.CountBySource(source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.EmailsResponse{
		Emails: emails,
		Source: source,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

func (h *EmailHandler) SearchEmails(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	emails, err := h.emailUsecase.Search(h.selector.ActiveSource(), query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"emails": emails, "query": query})
}

func (h *EmailHandler) GetEmailByID(c *gin.Context) {
	id := c.Param("id")
	email, err := h.emailUsecase.GetEmail(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if email == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}

	c.JSON(http.StatusOK, email)
}

func (h *EmailHandler) MarkAsRead(c *gin.Context) {
	id := c.Param("id")

	read := true
	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Read != nil {
		read = *req.Read
	}

	if err := h.emailUsecase.MarkRead(id, read); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "email updated"})
}

func (h *EmailHandler) ToggleActionItem(c *gin.Context) {
	id := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action item index"})
		return
	}

	email, err := h.emailUsecase.ToggleActionItem(id, index)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, email)
}

func (h *EmailHandler) DeleteActionItem(c *gin.Context) {
	id := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action item index"})
		return
	}

	email, err := h.emailUsecase.DeleteActionItem(id, index)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, email)
}
