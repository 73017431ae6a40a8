package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/event_processor"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/ledger"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type EventLister interface {
	List(ctx context.Context, workspaceID int64, status models.EventStatus, limit int) ([]*models.ProcessedEvent, error)
}

type EventReplayer interface {
	Replay(ctx context.Context, workspaceID int64, eventID string) (event_processor.Result, error)
	ReplayFailed(ctx context.Context, workspaceID int64, limit int) ([]event_processor.Result, error)
}

type EventHandler interface {
	ListEvents(c *gin.Context)
	ReplayEvent(c *gin.Context)
	ReplayFailed(c *gin.Context)
}

type eventHandler struct {
	events   EventLister
	replayer EventReplayer
	logger   *zap.Logger
}

func NewEventHandler(events EventLister, replayer EventReplayer, logger *zap.Logger) EventHandler {
	return &eventHandler{events: events, replayer: replayer, logger: logger}
}

// ListEvents handles GET /api/events
func (h *eventHandler) ListEvents(c *gin.Context) {
	status := models.EventStatus(c.Query("status"))
	switch status {
	case "", models.EventStatusClaimed, models.EventStatusSucceeded, models.EventStatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	rows, err := h.events.List(c.Request.Context(), workspaceID(c), status, limit)
	if err != nil {
		h.logger.Error("Failed to list events", zap.Int64("workspace_id", workspaceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
		return
	}
	if rows == nil {
		rows = []*models.ProcessedEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}

// ReplayEvent handles POST /api/events/:id/replay
func (h *eventHandler) ReplayEvent(c *gin.Context) {
	id := c.Param("id")
	res, err := h.replayer.Replay(c.Request.Context(), workspaceID(c), id)
	switch {
	case errors.Is(err, event_processor.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
	case errors.Is(err, event_processor.ErrNotReplayable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNoPayload):
		c.JSON(http.StatusConflict, gin.H{"error": "Event has no stored payload"})
	case err != nil:
		h.logger.Error("Failed to replay event", zap.String("event_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to replay event"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// ReplayFailed handles POST /api/events/replay
func (h *eventHandler) ReplayFailed(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	results, err := h.replayer.ReplayFailed(c.Request.Context(), workspaceID(c), limit)
	switch {
	case errors.Is(err, event_processor.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down"})
	case err != nil:
		h.logger.Error("Failed to replay failed events", zap.Int64("workspace_id", workspaceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to replay events"})
	default:
		if results == nil {
			results = []event_processor.Result{}
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}
