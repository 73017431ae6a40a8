package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type ConversationReader interface {
	GetConversation(ctx context.Context, workspaceID int64, conversationID string, historyLimit int) (*models.ConversationContext, error)
	ListConversations(ctx context.Context, workspaceID int64, limit int) ([]*models.ConversationContext, error)
}

type ConversationHandler interface {
	ListConversations(c *gin.Context)
	GetConversation(c *gin.Context)
}

type conversationHandler struct {
	conversations ConversationReader
	historyLimit  int
	logger        *zap.Logger
}

func NewConversationHandler(conversations ConversationReader, historyLimit int, logger *zap.Logger) ConversationHandler {
	return &conversationHandler{conversations: conversations, historyLimit: historyLimit, logger: logger}
}

// ListConversations handles GET /api/conversations
func (h *conversationHandler) ListConversations(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	convs, err := h.conversations.ListConversations(c.Request.Context(), workspaceID(c), limit)
	if err != nil {
		h.logger.Error("Failed to list conversations", zap.Int64("workspace_id", workspaceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}
	if convs == nil {
		convs = []*models.ConversationContext{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetConversation handles GET /api/conversations/:id
func (h *conversationHandler) GetConversation(c *gin.Context) {
	id := c.Param("id")
	conv, err := h.conversations.GetConversation(c.Request.Context(), workspaceID(c), id, h.historyLimit)
	if err != nil {
		h.logger.Error("Failed to get conversation", zap.String("conversation_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conversation"})
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	c.JSON(http.StatusOK, conv)
}
