package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/middleware"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func workspaceID(c *gin.Context) int64 {
	return c.GetInt64(middleware.ContextWorkspaceID)
}

// queryLimit parses ?limit=, clamped to [1, maxLimit].
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, maxLimit), true
}
