package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var errEmptyReply = errors.New("empty reply")

// ChatCompletionsClient talks to OpenAI-compatible chat completion APIs (Groq, OpenRouter).
type ChatCompletionsClient struct {
	name       string
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
}

type ChatCompletionsConfig struct {
	Name       string
	APIKey     string
	BaseURL    string
	ModelName  string
	MaxRetries int
	RetryDelay time.Duration
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

var defaultChatSettings = map[ProviderType]struct{ baseURL, model string }{
	ProviderGroq:       {"https://api.groq.com/openai/v1", "llama-3.3-70b-versatile"},
	ProviderOpenRouter: {"https://openrouter.ai/api/v1", "meta-llama/llama-3.2-3b-instruct:free"},
}

// NewChatCompletionsClient creates a client for t, filling in its default endpoint and model.
func NewChatCompletionsClient(t ProviderType, cfg ChatCompletionsConfig, logger *zap.Logger) (*ChatCompletionsClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", t)
	}
	defaults := defaultChatSettings[t]
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.baseURL
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s base URL is required", t)
	}
	if cfg.ModelName == "" {
		cfg.ModelName = defaults.model
	}
	if cfg.Name == "" {
		cfg.Name = string(t)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	logger.Info("Chat completions client initialized",
		zap.String("provider", cfg.Name),
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return &ChatCompletionsClient{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		modelName:  cfg.ModelName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

func (c *ChatCompletionsClient) Name() string { return c.name }

func (c *ChatCompletionsClient) Close() error { return nil }

// GenerateReply asks the model for a reply, retrying up to maxRetries times.
func (c *ChatCompletionsClient) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.modelName,
		Messages: []chatMessage{
			{Role: "system", Content: SystemInstruction},
			{Role: "user", Content: BuildPrompt(req)},
		},
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying chat completions request",
				zap.String("provider", c.name),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		reply, err := c.do(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		c.logger.Error("Chat completions request failed",
			zap.String("provider", c.name), zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("%s failed after %d attempts: %w", c.name, c.maxRetries, lastErr)
}

func (c *ChatCompletionsClient) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API returned status %d: %s", c.name, resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errEmptyReply
	}

	reply := CleanReply(parsed.Choices[0].Message.Content)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}
