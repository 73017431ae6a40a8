package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type RuleKind string

const (
	RuleKindDM          RuleKind = "dm"
	RuleKindCommentToDM RuleKind = "comment_to_dm"
)

type MatchMode string

const (
	MatchContains MatchMode = "contains" // case-insensitive substring, the default
	MatchWord     MatchMode = "word"
	MatchExact    MatchMode = "exact"
)

// Triggers decides which events a rule reacts to.
type Triggers struct {
	Keywords             []string  `json:"keywords"`
	MatchMode            MatchMode `json:"match_mode,omitempty"`
	FiresOnComment       bool      `json:"fires_on_comment"`
	FiresOnDirectMessage bool      `json:"fires_on_direct_message"`
}

// ActiveWindow limits a rule to certain hours and weekdays in its own timezone.
// Weekdays follow time.Weekday numbering (0 = Sunday).
type ActiveWindow struct {
	Enabled          bool   `json:"enabled"`
	StartMinuteOfDay int    `json:"start_minute_of_day"`
	EndMinuteOfDay   int    `json:"end_minute_of_day"`
	Timezone         string `json:"timezone,omitempty"`
	ActiveWeekdays   []int  `json:"active_weekdays"`
}

// Action describes what a rule sends once it fires.
type Action struct {
	CommentReplyPool []string     `json:"comment_reply_pool"`
	DMReplyPool      []string     `json:"dm_reply_pool"`
	Personality      string       `json:"personality,omitempty"`
	ActiveWindow     ActiveWindow `json:"active_window"`
	MaxPerDay        int          `json:"max_per_day"` // <= 0 means uncapped
}

type AutomationRule struct {
	ID          int64     `db:"id" json:"id"`
	WorkspaceID int64     `db:"workspace_id" json:"workspace_id"`
	Name        string    `db:"name" json:"name"`
	Kind        RuleKind  `db:"kind" json:"kind"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	Triggers    Triggers  `db:"triggers" json:"triggers"`
	Action      Action    `db:"action" json:"action"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// HandlesComment reports whether the rule reacts to comment events.
func (r *AutomationRule) HandlesComment() bool {
	return r.Kind == RuleKindCommentToDM || r.Triggers.FiresOnComment
}

// HandlesDirectMessage reports whether the rule reacts to direct messages.
func (r *AutomationRule) HandlesDirectMessage() bool {
	return r.Triggers.FiresOnDirectMessage
}

// Handles reports whether the rule reacts to events of type t.
func (r *AutomationRule) Handles(t EventType) bool {
	switch t {
	case EventTypeComment:
		return r.HandlesComment()
	case EventTypeDirectMessage:
		return r.HandlesDirectMessage()
	}
	return false
}

// EffectiveKeywords returns the trimmed, non-empty keywords. A rule without any is a catch-all.
func (r *AutomationRule) EffectiveKeywords() []string {
	out := make([]string, 0, len(r.Triggers.Keywords))
	for _, k := range r.Triggers.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (t Triggers) Value() (driver.Value, error) { return jsonValue(t) }

func (t *Triggers) Scan(src any) error { return jsonScan(src, t) }

func (a Action) Value() (driver.Value, error) { return jsonValue(a) }

func (a *Action) Scan(src any) error { return jsonScan(src, a) }

// jsonValue is returned as a string so lib/pq sends it as text into JSONB columns.
func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
