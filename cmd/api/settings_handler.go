package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hykura/mailmind/pkg/config"
	"github.com/hykura/mailmind/pkg/llm"
)

// SettingsHandler exposes the active LLM backend configuration and a
// reachability probe for it.
type SettingsHandler struct {
	config    *config.Config
	completer llm.Completer
}

func NewSettingsHandler(cfg *config.Config, completer llm.Completer) *SettingsHandler {
	return &SettingsHandler{config: cfg, completer: completer}
}

// GetLLMSettings returns the current backend configuration.
// GET /api/settings/llm
func (h *SettingsHandler) GetLLMSettings(c *gin.Context) {
	resp := gin.H{
		"provider":    h.config.LLMProvider,
		"backend":     h.completer.Name(),
		"embed_model": h.config.EmbedModel,
	}
	switch llm.ProviderType(h.config.LLMProvider) {
	case llm.ProviderOllama:
		resp["base_url"] = h.config.OllamaBaseURL
		resp["model"] = h.config.OllamaModel
	case llm.ProviderGroq:
		resp["model"] = h.config.GroqModel
	}
	c.JSON(http.StatusOK, resp)
}

// TestLLMConnection checks whether the local model server is reachable.
// POST /api/settings/llm/test
func (h *SettingsHandler) TestLLMConnection(c *gin.Context) {
	if llm.ProviderType(h.config.LLMProvider) != llm.ProviderOllama {
		c.JSON(http.StatusOK, gin.H{
			"connected": true,
			"provider":  h.config.LLMProvider,
			"note":      "hosted backend, probed on first use",
		})
		return
	}

	resp, err := http.Get(h.config.OllamaBaseURL + "/api/tags")
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected":   false,
			"status_code": resp.StatusCode,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected": true,
		"provider":  h.config.LLMProvider,
		"base_url":  h.config.OllamaBaseURL,
	})
}
