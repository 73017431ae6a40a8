// Package llm generates short contextual replies through a chain of hosted model providers.
package llm

import (
	"context"
	"strings"
	"unicode/utf8"
)

// ProviderType names a supported provider.
type ProviderType string

const (
	ProviderGemini     ProviderType = "gemini"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
)

// MaxReplyRunes caps generated replies; Instagram rejects very long messages.
const MaxReplyRunes = 900

// SystemInstruction is shared by every provider.
const SystemInstruction = `You reply on behalf of a business to Instagram comments and direct messages.
Write one short, friendly reply in the language of the incoming message.
Never invent prices, links, discount codes or promises. Do not use hashtags.
Reply with the message text only.`

type Turn struct {
	FromParticipant bool
	Text            string
}

// ReplyRequest is everything a provider needs to answer one inbound message.
type ReplyRequest struct {
	Personality string
	Channel     string
	History     []Turn
	Text        string
}

// Provider is any LLM backend able to produce a reply.
type Provider interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
	Name() string
	Close() error
}

// BuildPrompt renders the user part of the prompt.
func BuildPrompt(req ReplyRequest) string {
	var b strings.Builder
	if req.Personality != "" {
		b.WriteString("Tone and persona: ")
		b.WriteString(req.Personality)
		b.WriteString("\n\n")
	}
	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range req.History {
			if t.FromParticipant {
				b.WriteString("Customer: ")
			} else {
				b.WriteString("Us: ")
			}
			b.WriteString(t.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if req.Channel != "" {
		b.WriteString("Channel: ")
		b.WriteString(req.Channel)
		b.WriteString("\n")
	}
	b.WriteString("New message from the customer:\n")
	b.WriteString(req.Text)
	return b.String()
}

// CleanReply strips wrapping quotes and whitespace and caps the length.
func CleanReply(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"`")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxReplyRunes {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:MaxReplyRunes]))
	}
	return s
}
