package middleware

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

var secret = []byte("test-secret")

func sign(t *testing.T, key []byte, method jwt.SigningMethod, claims models.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret, zap.NewNop()))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"workspace_id": c.GetInt64(ContextWorkspaceID), "role": c.GetString(ContextRole)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	valid := models.Claims{
		WorkspaceID:      42,
		Role:             "operator",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noWorkspace := valid
	noWorkspace.WorkspaceID = 0

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized, body: "Authorization header required"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, body: "must be Bearer"},
		{name: "expired", header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, expired), status: http.StatusUnauthorized, body: "Token expired"},
		{name: "wrong key", header: "Bearer " + sign(t, []byte("other"), jwt.SigningMethodHS256, valid), status: http.StatusUnauthorized, body: "Invalid token"},
		{name: "no workspace", header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, noWorkspace), status: http.StatusUnauthorized, body: "Invalid token"},
		{name: "valid", header: "Bearer " + sign(t, secret, jwt.SigningMethodHS256, valid), status: http.StatusOK, body: `{"role":"operator","workspace_id":42}`},
	}

	router := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestIssueToken(t *testing.T) {
	token, expires, err := IssueToken(secret, 7, "operator", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role":"operator","workspace_id":7}`, rec.Body.String())
}
