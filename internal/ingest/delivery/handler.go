package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	"github.com/hykura/mailmind/internal/ingest/usecase"
	"github.com/hykura/mailmind/pkg/chroma"
)

// SourceSelector reports which corpus is currently active.
type SourceSelector interface {
	ActiveSource() emaildomain.Source
}

// StatsProvider exposes vector index diagnostics.
type StatsProvider interface {
	GetStats(ctx context.Context) (*chroma.Stats, error)
}

type IngestHandler struct {
	pipeline *usecase.Pipeline
	selector SourceSelector
	stats    StatsProvider
}

func NewIngestHandler(pipeline *usecase.Pipeline, selector SourceSelector, stats StatsProvider) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, selector: selector, stats: stats}
}

// Run streams ingestion progress as server-sent events. The stream closes
// after the complete or error event; a run already in flight yields 409.
func (h *IngestHandler) Run(c *gin.Context) {
	events, err := h.pipeline.Run(c.Request.Context(), h.selector.ActiveSource())
	if err != nil {
		if errors.Is(err, usecase.ErrIngestRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(string(event.Type), event)
		return true
	})
}

// Reset clears enrichment and vector entries for the active corpus.
func (h *IngestHandler) Reset(c *gin.Context) {
	if err := h.pipeline.Reset(c.Request.Context(), h.selector.ActiveSource()); err != nil {
		if errors.Is(err, usecase.ErrIngestRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ingestion state reset"})
}

// GetIndexStats reports vector index diagnostics.
func (h *IngestHandler) GetIndexStats(c *gin.Context) {
	stats, err := h.stats.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
