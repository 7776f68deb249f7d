package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	chatDelivery "github.com/hykura/mailmind/internal/chat/delivery"
	emailDelivery "github.com/hykura/mailmind/internal/email/delivery"
	ingestDelivery "github.com/hykura/mailmind/internal/ingest/delivery"
	promptDelivery "github.com/hykura/mailmind/internal/prompt/delivery"
	syncDelivery "github.com/hykura/mailmind/internal/sync/delivery"
)

// Handlers bundles the per-feature HTTP handlers the router mounts.
type Handlers struct {
	Email    *emailDelivery.EmailHandler
	Sync     *syncDelivery.SyncHandler
	Ingest   *ingestDelivery.IngestHandler
	Chat     *chatDelivery.ChatHandler
	Prompt   *promptDelivery.TemplateHandler
	Settings *SettingsHandler
}

func SetupRoutes(r *gin.Engine, h *Handlers) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		emails := api.Group("/emails")
		{
			emails.GET("", h.Email.ListEmails)
			emails.GET("/search", h.Email.SearchEmails)
			emails.POST("/load", h.Email.LoadInbox)
			emails.GET("/:id", h.Email.GetEmailByID)
			emails.POST("/:id/read", h.Email.MarkAsRead)
			emails.PATCH("/:id/tasks/:index", h.Email.ToggleActionItem)
			emails.DELETE("/:id/tasks/:index", h.Email.DeleteActionItem)
		}

		gmail := api.Group("/gmail")
		{
			gmail.GET("/auth-url", h.Sync.GetAuthURL)
			gmail.POST("/connect", h.Sync.Connect)
			gmail.POST("/disconnect", h.Sync.Disconnect)
			gmail.GET("/status", h.Sync.GetStatus)
		}
		api.POST("/sync", h.Sync.TriggerSync)

		api.POST("/ingest", h.Ingest.Run)
		api.POST("/ingest/reset", h.Ingest.Reset)
		api.GET("/index/stats", h.Ingest.GetIndexStats)

		api.POST("/chat", h.Chat.Chat)
		sessions := api.Group("/sessions")
		{
			sessions.GET("/:id", h.Chat.GetHistory)
			sessions.DELETE("/:id", h.Chat.DeleteSession)
		}

		prompts := api.Group("/prompts")
		{
			prompts.GET("", h.Prompt.ListTemplates)
			prompts.POST("", h.Prompt.UpdateTemplate)
		}

		settings := api.Group("/settings")
		{
			settings.GET("/llm", h.Settings.GetLLMSettings)
			settings.POST("/llm/test", h.Settings.TestLLMConnection)
		}
	}
}
