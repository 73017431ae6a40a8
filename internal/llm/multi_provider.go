package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/config"
)

// ErrNoProviders is returned when no provider could be configured.
var ErrNoProviders = errors.New("no llm providers configured")

// RateLimitedProvider wraps a provider with a requests-per-minute limit.
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

func NewRateLimitedProvider(provider Provider, requestsPerMinute int) *RateLimitedProvider {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 8
	}
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

func (p *RateLimitedProvider) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return p.provider.GenerateReply(ctx, req)
}

func (p *RateLimitedProvider) Name() string { return p.provider.Name() }

func (p *RateLimitedProvider) Close() error { return p.provider.Close() }

// MultiProviderClient manages multiple providers with fallback. The current provider is kept
// until it fails maxFailures times in a row or reports a rate limit.
type MultiProviderClient struct {
	providers    []Provider
	currentIndex int
	mu           sync.RWMutex
	logger       *zap.Logger
	failureCount map[int]int
	maxFailures  int
}

// NewMultiProviderClient builds the provider chain from configuration. Providers that fail to
// initialize are skipped.
func NewMultiProviderClient(ctx context.Context, cfgs []config.ProviderConfig, maxFailures int, logger *zap.Logger) (*MultiProviderClient, error) {
	providers := make([]Provider, 0, len(cfgs))
	for i, pc := range cfgs {
		var (
			provider Provider
			err      error
		)
		switch ProviderType(pc.Type) {
		case ProviderGemini:
			provider, err = NewGeminiClient(ctx, GeminiConfig{
				APIKey:     pc.APIKey,
				ModelName:  pc.ModelName,
				MaxRetries: pc.MaxRetries,
				RetryDelay: pc.RetryDelay,
			}, logger)
		case ProviderGroq, ProviderOpenRouter:
			provider, err = NewChatCompletionsClient(ProviderType(pc.Type), ChatCompletionsConfig{
				APIKey:     pc.APIKey,
				BaseURL:    pc.BaseURL,
				ModelName:  pc.ModelName,
				MaxRetries: pc.MaxRetries,
				RetryDelay: pc.RetryDelay,
			}, logger)
		default:
			logger.Warn("Unknown provider type, skipping", zap.String("type", pc.Type), zap.Int("index", i))
			continue
		}
		if err != nil {
			logger.Error("Failed to create provider", zap.String("type", pc.Type), zap.Int("index", i), zap.Error(err))
			continue
		}

		providers = append(providers, NewRateLimitedProvider(provider, pc.RequestsPerMinute))
		logger.Info("Provider initialized",
			zap.String("type", pc.Type),
			zap.String("model", pc.ModelName),
			zap.Int("rate_limit", pc.RequestsPerMinute),
			zap.Int("index", i))
	}

	return NewMultiProvider(providers, maxFailures, logger)
}

// NewMultiProvider chains already constructed providers.
func NewMultiProvider(providers []Provider, maxFailures int, logger *zap.Logger) (*MultiProviderClient, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &MultiProviderClient{
		providers:    providers,
		logger:       logger,
		failureCount: make(map[int]int),
		maxFailures:  maxFailures,
	}, nil
}

func (c *MultiProviderClient) current() (Provider, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[c.currentIndex], c.currentIndex
}

// switchFrom moves to the next provider unless another caller already did.
func (c *MultiProviderClient) switchFrom(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentIndex != index {
		return
	}
	c.currentIndex = (c.currentIndex + 1) % len(c.providers)
	c.logger.Info("Switching provider",
		zap.Int("from_index", index),
		zap.Int("to_index", c.currentIndex),
		zap.Int("total_providers", len(c.providers)))
}

func (c *MultiProviderClient) recordFailure(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount[index]++
	if c.failureCount[index] >= c.maxFailures {
		c.failureCount[index] = 0
		return true
	}
	return false
}

func (c *MultiProviderClient) resetFailures(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount[index] = 0
}

// GenerateReply tries each provider at most once, starting from the current one.
func (c *MultiProviderClient) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	_, start := c.current()

	var lastErr error
	for i := 0; i < len(c.providers); i++ {
		index := (start + i) % len(c.providers)
		provider := c.providers[index]

		reply, err := provider.GenerateReply(ctx, req)
		if err == nil {
			c.resetFailures(index)
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.logger.Error("Provider failed",
			zap.String("provider", provider.Name()),
			zap.Int("provider_index", index),
			zap.Error(err))

		if c.recordFailure(index) || isRateLimitError(err) {
			c.switchFrom(index)
		}
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

func (c *MultiProviderClient) Name() string {
	p, _ := c.current()
	return p.Name()
}

func (c *MultiProviderClient) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit")
}
