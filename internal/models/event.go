package models

import "time"

type EventType string

const (
	EventTypeComment       EventType = "comment"
	EventTypeDirectMessage EventType = "direct_message"
)

// Event is a normalized webhook notification.
type Event struct {
	ExternalAccountID string    `json:"external_account_id"`
	ExternalPageID    string    `json:"external_page_id,omitempty"`
	Type              EventType `json:"event_type"`
	EventID           string    `json:"event_id"`
	SenderExternalID  string    `json:"sender_external_id"`
	SenderHandle      string    `json:"sender_handle,omitempty"`
	Text              string    `json:"text"`
	PostOrThreadID    string    `json:"post_or_thread_id,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}
