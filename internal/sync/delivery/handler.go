package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hykura/mailmind/internal/sync/domain"
	"github.com/hykura/mailmind/internal/sync/usecase"
	"github.com/hykura/mailmind/pkg/gmail"
)

type SyncHandler struct {
	syncer *usecase.Syncer
	client *gmail.Client
}

func NewSyncHandler(syncer *usecase.Syncer, client *gmail.Client) *SyncHandler {
	return &SyncHandler{syncer: syncer, client: client}
}

type connectRequest struct {
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirect_uri" binding:"required"`
}

// GetAuthURL returns the Google consent URL for the frontend to open.
func (h *SyncHandler) GetAuthURL(c *gin.Context) {
	redirectURI := c.Query("redirect_uri")
	if redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "redirect_uri is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": h.client.AuthURL(redirectURI, c.Query("state"))})
}

// Connect exchanges the authorization code, switches the active corpus to
// the remote mailbox and runs the initial full sync.
func (h *SyncHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.client.Exchange(c.Request.Context(), req.RedirectURI, req.Code)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	result, err := h.syncer.Connect(c.Request.Context(), token)
	if err != nil {
		h.writeSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) Disconnect(c *gin.Context) {
	if err := h.syncer.Disconnect(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}

// TriggerSync runs a sync on demand. ?full=true forces a re-list.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	mode := domain.ModeIncremental
	if c.Query("full") == "true" || c.Query("full") == "1" {
		mode = domain.ModeFull
	}

	result, err := h.syncer.Sync(c.Request.Context(), mode)
	if err != nil {
		h.writeSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) GetStatus(c *gin.Context) {
	status, err := h.syncer.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *SyncHandler) writeSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSyncRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gmail.ErrReauthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "gmail authorization expired, reconnect the account"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
