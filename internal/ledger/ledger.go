// Package ledger guarantees an event is delivered at most once while letting failed
// deliveries be retried.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/repository"
)

var (
	ErrAlreadyHandled = errors.New("event already claimed or handled")
	ErrNoPayload      = errors.New("processed event has no stored payload")
)

// Alerter receives operator notifications.
type Alerter interface {
	Notify(ctx context.Context, text string)
}

// Claim is a held reservation for one event. Attempt counts from 1. RuleID may be set after
// claiming and is stored by Commit.
type Claim struct {
	EventID     string
	WorkspaceID int64
	RuleID      *int64
	Attempt     int
	claimedAt   time.Time
}

type Ledger struct {
	store       repository.ProcessedEventRepository
	alerts      Alerter
	claimTTL    time.Duration
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

func New(store repository.ProcessedEventRepository, alerts Alerter, claimTTL time.Duration, maxAttempts int, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:       store,
		alerts:      alerts,
		claimTTL:    claimTTL,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Claim reserves ev for processing. It returns ErrAlreadyHandled when another worker holds a
// live claim or the event already succeeded.
func (l *Ledger) Claim(ctx context.Context, ev models.Event, workspaceID int64, ruleID *int64) (*Claim, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}

	// microsecond precision survives a round trip through either database
	now := l.now().UTC().Truncate(time.Microsecond)
	row, err := l.store.ClaimEvent(ctx, repository.ClaimParams{
		EventID:     ev.EventID,
		WorkspaceID: workspaceID,
		RuleID:      ruleID,
		Payload:     payload,
		At:          now,
		StaleBefore: now.Add(-l.claimTTL),
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrAlreadyHandled
	}

	return &Claim{
		EventID:     ev.EventID,
		WorkspaceID: workspaceID,
		RuleID:      ruleID,
		Attempt:     row.AttemptCount + 1,
		claimedAt:   now,
	}, nil
}

// Commit records the outcome of c and returns the stored status. A failure that reaches the
// attempt cap is stored as succeeded with an abandonment note so it stops being retried.
func (l *Ledger) Commit(ctx context.Context, c *Claim, succeeded bool, note string) (models.EventStatus, error) {
	status := models.EventStatusSucceeded
	if !succeeded {
		status = models.EventStatusFailed
		if l.maxAttempts > 0 && c.Attempt >= l.maxAttempts {
			reason := note
			status = models.EventStatusSucceeded
			note = fmt.Sprintf("abandoned after %d attempts: %s", c.Attempt, reason)
			l.logger.Error("Abandoning event after repeated failures",
				zap.String("event_id", c.EventID),
				zap.Int64("workspace_id", c.WorkspaceID),
				zap.Int("attempts", c.Attempt),
			)
			if l.alerts != nil {
				l.alerts.Notify(ctx, fmt.Sprintf("Event %s (workspace %d) abandoned after %d attempts: %s",
					c.EventID, c.WorkspaceID, c.Attempt, reason))
			}
		}
	}

	err := l.store.CompleteEvent(ctx, repository.CompleteParams{
		EventID:      c.EventID,
		ClaimedAt:    c.claimedAt,
		RuleID:       c.RuleID,
		Status:       status,
		AttemptCount: c.Attempt,
		Note:         note,
		At:           l.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit event %s: %w", c.EventID, err)
	}
	return status, nil
}

// Lookup returns the ledger row and the stored event for eventID, or (nil, nil, nil) if unknown.
func (l *Ledger) Lookup(ctx context.Context, eventID string) (*models.ProcessedEvent, *models.Event, error) {
	row, err := l.store.GetProcessedEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if row == nil {
		return nil, nil, nil
	}
	if len(row.EventPayload) == 0 {
		return row, nil, ErrNoPayload
	}

	var ev models.Event
	if err := json.Unmarshal(row.EventPayload, &ev); err != nil {
		return row, nil, fmt.Errorf("failed to decode stored payload for %s: %w", eventID, err)
	}
	return row, &ev, nil
}

func (l *Ledger) List(ctx context.Context, workspaceID int64, status models.EventStatus, limit int) ([]*models.ProcessedEvent, error) {
	return l.store.ListProcessedEvents(ctx, workspaceID, status, limit)
}
