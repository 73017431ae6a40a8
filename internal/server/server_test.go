package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type stubEndpoint struct{ name string }

func (s stubEndpoint) respond(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoint": s.name, "workspace_id": c.GetInt64("workspace_id")})
}

func (s stubEndpoint) Verify(c *gin.Context)            { s.respond(c) }
func (s stubEndpoint) Receive(c *gin.Context)           { s.respond(c) }
func (s stubEndpoint) ListConversations(c *gin.Context) { s.respond(c) }
func (s stubEndpoint) GetConversation(c *gin.Context)   { s.respond(c) }
func (s stubEndpoint) ListEvents(c *gin.Context)        { s.respond(c) }
func (s stubEndpoint) ReplayEvent(c *gin.Context)       { s.respond(c) }
func (s stubEndpoint) ReplayFailed(c *gin.Context)      { s.respond(c) }

func TestServerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("s3cret")
	stub := stubEndpoint{name: "stub"}
	srv := NewServer(":0", secret, Handlers{Webhook: stub, Conversations: stub, Events: stub}, zap.NewNop())

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.Claims{
		WorkspaceID:      9,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(secret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		auth   bool
		status int
	}{
		{name: "ping", method: http.MethodGet, path: "/ping", status: http.StatusOK},
		{name: "webhook verify is public", method: http.MethodGet, path: "/webhooks/instagram", status: http.StatusOK},
		{name: "webhook receive is public", method: http.MethodPost, path: "/webhooks/instagram", status: http.StatusOK},
		{name: "api requires a token", method: http.MethodGet, path: "/api/events", status: http.StatusUnauthorized},
		{name: "events", method: http.MethodGet, path: "/api/events", auth: true, status: http.StatusOK},
		{name: "replay", method: http.MethodPost, path: "/api/events/e-1/replay", auth: true, status: http.StatusOK},
		{name: "replay failed", method: http.MethodPost, path: "/api/events/replay", auth: true, status: http.StatusOK},
		{name: "conversations", method: http.MethodGet, path: "/api/conversations", auth: true, status: http.StatusOK},
		{name: "conversation", method: http.MethodGet, path: "/api/conversations/c-1", auth: true, status: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/nope", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.auth {
				assert.Contains(t, rec.Body.String(), `"workspace_id":9`)
			}
		})
	}
}
