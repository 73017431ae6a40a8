package instagram_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnconfirmed means the API answered 2xx without the id that proves delivery.
var ErrUnconfirmed = errors.New("graph api response did not confirm delivery")

// APIError is an error envelope returned by the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error (status %d, code %d/%d, %s): %s", e.StatusCode, e.Code, e.Subcode, e.Type, e.Message)
}

// Recipient addresses a direct message either to a user id or, as a private reply, to a comment.
type Recipient struct {
	ID        string `json:"id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

// Client for the Instagram Graph API messaging and comment endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Graph API client. Callers bound each call with their context;
// the client timeout is only a backstop.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// ReplyToComment posts a public reply under commentID and returns the new comment id.
func (c *Client) ReplyToComment(ctx context.Context, accessToken, commentID, text string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/replies", c.baseURL, url.PathEscape(commentID))
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, endpoint, accessToken, map[string]string{"message": text}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrUnconfirmed
	}
	return resp.ID, nil
}

// SendDirectMessage sends text from the professional account igUserID and returns the message id.
func (c *Client) SendDirectMessage(ctx context.Context, accessToken, igUserID string, to Recipient, text string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, url.PathEscape(igUserID))
	body := struct {
		Recipient Recipient `json:"recipient"`
		Message   struct {
			Text string `json:"text"`
		} `json:"message"`
	}{Recipient: to}
	body.Message.Text = text

	var resp struct {
		RecipientID string `json:"recipient_id"`
		MessageID   string `json:"message_id"`
	}
	if err := c.post(ctx, endpoint, accessToken, body, &resp); err != nil {
		return "", err
	}
	if resp.MessageID == "" {
		return "", ErrUnconfirmed
	}
	return resp.MessageID, nil
}

func (c *Client) post(ctx context.Context, endpoint, accessToken string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call graph api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read graph api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			apiErr = envelope.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		c.logger.Warn("Graph API returned an error",
			zap.Int("status", apiErr.StatusCode),
			zap.Int("code", apiErr.Code),
			zap.Int("subcode", apiErr.Subcode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn("Undecodable graph api success response", zap.Error(err))
		return ErrUnconfirmed
	}
	return nil
}
