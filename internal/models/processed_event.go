package models

import "time"

type EventStatus string

const (
	EventStatusClaimed   EventStatus = "claimed"
	EventStatusSucceeded EventStatus = "succeeded"
	EventStatusFailed    EventStatus = "failed"
)

// ProcessedEvent is the idempotency ledger row for one external event id.
type ProcessedEvent struct {
	EventID       string      `db:"event_id" json:"event_id"`
	WorkspaceID   int64       `db:"workspace_id" json:"workspace_id"`
	RuleID        *int64      `db:"rule_id" json:"rule_id,omitempty"`
	Status        EventStatus `db:"status" json:"status"`
	AttemptCount  int         `db:"attempt_count" json:"attempt_count"`
	LastAttemptAt time.Time   `db:"last_attempt_at" json:"last_attempt_at"`
	Note          string      `db:"note" json:"note"`
	EventPayload  []byte      `db:"event_payload" json:"-"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// DailyRuleUsage counts successful dispatches of a rule on one calendar date.
type DailyRuleUsage struct {
	RuleID  int64  `db:"rule_id" json:"rule_id"`
	DateKey string `db:"date_key" json:"date_key"`
	Count   int    `db:"count" json:"count"`
}
