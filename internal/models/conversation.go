package models

import "time"

const (
	SenderParticipant = "participant"
	SenderAutomation  = "automation"
)

type Channel string

const (
	ChannelComment Channel = "comment"
	ChannelDM      Channel = "dm"
)

type ConversationMessage struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Sender         string    `db:"sender" json:"sender"`
	Channel        Channel   `db:"channel" json:"channel"`
	Text           string    `db:"text" json:"text"`
	At             time.Time `db:"created_at" json:"at"`
}

// ConversationContext is the per-participant history kept for each workspace.
type ConversationContext struct {
	ConversationID        string                `db:"conversation_id" json:"conversation_id"`
	WorkspaceID           int64                 `db:"workspace_id" json:"workspace_id"`
	ParticipantExternalID string                `db:"participant_external_id" json:"participant_external_id"`
	ParticipantHandle     string                `db:"participant_handle" json:"participant_handle"`
	CreatedAt             time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time             `db:"updated_at" json:"updated_at"`
	Messages              []ConversationMessage `db:"-" json:"messages,omitempty"`
	ExtractedTopics       []string              `db:"-" json:"extracted_topics,omitempty"`
}

// LastAutomationText returns the most recent text the automation sent on channel, or "".
func (c *ConversationContext) LastAutomationText(channel Channel) string {
	if c == nil {
		return ""
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if m.Sender == SenderAutomation && m.Channel == channel {
			return m.Text
		}
	}
	return ""
}
