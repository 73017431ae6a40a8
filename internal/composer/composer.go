// Package composer builds reply texts from a rule's response pools or a contextual generator.
package composer

import (
	"context"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/llm"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type Source string

const (
	SourcePool      Source = "pool"
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

type Reply struct {
	Text   string
	Source Source
}

// Generator produces a contextual reply.
type Generator interface {
	GenerateReply(ctx context.Context, req llm.ReplyRequest) (string, error)
}

type Composer struct {
	generator Generator
	fallback  string
	logger    *zap.Logger
	intn      func(n int) int
}

// New creates a Composer. generator may be nil, in which case rules without a pool get
// fallbackReply.
func New(generator Generator, fallbackReply string, logger *zap.Logger) *Composer {
	return &Composer{
		generator: generator,
		fallback:  fallbackReply,
		logger:    logger,
		intn:      rand.IntN,
	}
}

// Compose returns the text for one leg of rule's action on channel.
func (c *Composer) Compose(ctx context.Context, rule *models.AutomationRule, ev models.Event, conv *models.ConversationContext, channel models.Channel) Reply {
	pool := rule.Action.DMReplyPool
	if channel == models.ChannelComment {
		pool = rule.Action.CommentReplyPool
	}
	if entries := cleanPool(pool); len(entries) > 0 {
		return Reply{Text: c.pick(entries, conv.LastAutomationText(channel)), Source: SourcePool}
	}

	if c.generator != nil {
		text, err := c.generator.GenerateReply(ctx, llm.ReplyRequest{
			Personality: rule.Action.Personality,
			Channel:     string(channel),
			History:     history(conv),
			Text:        ev.Text,
		})
		if err == nil && strings.TrimSpace(text) != "" {
			return Reply{Text: text, Source: SourceGenerated}
		}
		c.logger.Warn("Contextual reply generation failed, using fallback",
			zap.String("event_id", ev.EventID),
			zap.Int64("rule_id", rule.ID),
			zap.Error(err))
	}

	return Reply{Text: c.fallback, Source: SourceFallback}
}

// pick chooses uniformly, skipping previous when there is anything else to say.
func (c *Composer) pick(pool []string, previous string) string {
	if len(pool) > 1 && previous != "" {
		others := make([]string, 0, len(pool))
		for _, p := range pool {
			if p != previous {
				others = append(others, p)
			}
		}
		if len(others) > 0 {
			pool = others
		}
	}
	return pool[c.intn(len(pool))]
}

func cleanPool(pool []string) []string {
	out := make([]string, 0, len(pool))
	for _, p := range pool {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func history(conv *models.ConversationContext) []llm.Turn {
	if conv == nil {
		return nil
	}
	turns := make([]llm.Turn, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		turns = append(turns, llm.Turn{FromParticipant: m.Sender == models.SenderParticipant, Text: m.Text})
	}
	return turns
}
