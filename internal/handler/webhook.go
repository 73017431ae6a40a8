package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

const (
	maxWebhookBody  = 1 << 20
	signatureHeader = "X-Hub-Signature-256"
)

type EventNormalizer interface {
	Normalize(body []byte) ([]models.Event, error)
}

type EventSubmitter interface {
	Submit(events []models.Event) int
}

type WebhookHandler interface {
	Verify(c *gin.Context)
	Receive(c *gin.Context)
}

type webhookHandler struct {
	normalizer  EventNormalizer
	submitter   EventSubmitter
	verifyToken string
	appSecret   []byte
	logger      *zap.Logger
}

// NewWebhookHandler creates the Instagram webhook endpoints. With an empty appSecret payload
// signatures are not checked.
func NewWebhookHandler(normalizer EventNormalizer, submitter EventSubmitter, verifyToken, appSecret string, logger *zap.Logger) WebhookHandler {
	if appSecret == "" {
		logger.Warn("instagram.app_secret is empty, webhook signatures will not be verified")
	}
	return &webhookHandler{
		normalizer:  normalizer,
		submitter:   submitter,
		verifyToken: verifyToken,
		appSecret:   []byte(appSecret),
		logger:      logger,
	}
}

// Verify handles GET /webhooks/instagram
func (h *webhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode != "subscribe" || h.verifyToken == "" || !hmac.Equal([]byte(token), []byte(h.verifyToken)) {
		h.logger.Warn("Webhook verification rejected", zap.String("mode", mode))
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// Receive handles POST /webhooks/instagram
func (h *webhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if len(h.appSecret) > 0 && !validSignature(h.appSecret, body, c.GetHeader(signatureHeader)) {
		h.logger.Warn("Webhook signature mismatch", zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid signature"})
		return
	}

	events, err := h.normalizer.Normalize(body)
	if err != nil {
		// the platform redelivers anything that is not a 200
		h.logger.Warn("Unparseable webhook payload", zap.Error(err), zap.Int("size", len(body)))
		c.JSON(http.StatusOK, gin.H{"received": 0})
		return
	}

	accepted := 0
	if len(events) > 0 {
		accepted = h.submitter.Submit(events)
	}
	h.logger.Debug("Webhook received", zap.Int("events", len(events)), zap.Int("accepted", accepted))
	c.JSON(http.StatusOK, gin.H{"received": accepted})
}

func validSignature(secret, body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
