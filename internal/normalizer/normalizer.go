// Package normalizer turns Instagram webhook payloads into canonical events.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

const (
	objectInstagram = "instagram"
	objectPage      = "page"
)

var errMalformed = errors.New("malformed webhook item")

type envelope struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Changes   []change    `json:"changes"`
	Messaging []messaging `json:"messaging"`
}

type change struct {
	Field string       `json:"field"`
	Value commentValue `json:"value"`
}

type commentValue struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

type messaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		Mid    string `json:"mid"`
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message"`
}

type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

// Normalize parses a webhook body. An error means the envelope itself could not be read;
// individual malformed items are logged and skipped.
func (n *Normalizer) Normalize(body []byte) ([]models.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if env.Object != objectInstagram && env.Object != objectPage {
		n.logger.Warn("Ignoring webhook for unsupported object", zap.String("object", env.Object))
		return nil, nil
	}

	received := n.now().UTC()
	var events []models.Event
	for _, e := range env.Entry {
		if e.ID == "" {
			n.logger.Warn("Skipping webhook entry without id")
			continue
		}
		for _, c := range e.Changes {
			ev, ok, err := n.fromChange(env.Object, e, c, received)
			if err != nil {
				n.logger.Warn("Skipping malformed comment change", zap.String("entry_id", e.ID), zap.Error(err))
				continue
			}
			if ok {
				events = append(events, ev)
			}
		}
		for _, m := range e.Messaging {
			ev, ok, err := n.fromMessaging(env.Object, e, m, received)
			if err != nil {
				n.logger.Warn("Skipping malformed messaging item", zap.String("entry_id", e.ID), zap.Error(err))
				continue
			}
			if ok {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

func (n *Normalizer) fromChange(object string, e entry, c change, received time.Time) (models.Event, bool, error) {
	if c.Field != "comments" && c.Field != "live_comments" {
		return models.Event{}, false, nil
	}
	v := c.Value
	if v.ID == "" || v.From.ID == "" {
		return models.Event{}, false, fmt.Errorf("%w: comment without id or author", errMalformed)
	}
	if v.From.ID == e.ID {
		// our own reply surfacing as a comment
		return models.Event{}, false, nil
	}

	ev := models.Event{
		ExternalAccountID: e.ID,
		Type:              models.EventTypeComment,
		EventID:           v.ID,
		SenderExternalID:  v.From.ID,
		SenderHandle:      v.From.Username,
		Text:              v.Text,
		PostOrThreadID:    v.Media.ID,
		ReceivedAt:        timestamp(e.Time, received),
	}
	if object == objectPage {
		ev.ExternalPageID = e.ID
	}
	return ev, true, nil
}

func (n *Normalizer) fromMessaging(object string, e entry, m messaging, received time.Time) (models.Event, bool, error) {
	if m.Message == nil {
		// delivery, read and reaction notifications
		return models.Event{}, false, nil
	}
	if m.Message.IsEcho || (m.Sender.ID != "" && m.Sender.ID == e.ID) {
		return models.Event{}, false, nil
	}
	if m.Message.Mid == "" || m.Sender.ID == "" {
		return models.Event{}, false, fmt.Errorf("%w: message without mid or sender", errMalformed)
	}

	ev := models.Event{
		ExternalAccountID: e.ID,
		Type:              models.EventTypeDirectMessage,
		EventID:           m.Message.Mid,
		SenderExternalID:  m.Sender.ID,
		Text:              m.Message.Text,
		PostOrThreadID:    m.Sender.ID,
		ReceivedAt:        timestamp(m.Timestamp, timestamp(e.Time, received)),
	}
	if object == objectPage {
		ev.ExternalPageID = e.ID
		if m.Recipient.ID != "" {
			ev.ExternalAccountID = m.Recipient.ID
		}
	}
	return ev, true, nil
}

// timestamp accepts unix seconds or milliseconds.
func timestamp(v int64, fallback time.Time) time.Time {
	switch {
	case v <= 0:
		return fallback
	case v > 1e12:
		return time.UnixMilli(v).UTC()
	default:
		return time.Unix(v, 0).UTC()
	}
}
