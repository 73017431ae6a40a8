package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

// ErrClaimLost is returned by CompleteEvent when the row is no longer held by the caller's claim.
var ErrClaimLost = errors.New("processed event claim lost")

type ClaimParams struct {
	EventID     string
	WorkspaceID int64
	RuleID      *int64
	Payload     []byte
	At          time.Time
	// StaleBefore makes a claimed row whose last attempt is older than this re-claimable.
	StaleBefore time.Time
}

type CompleteParams struct {
	EventID      string
	ClaimedAt    time.Time
	RuleID       *int64
	Status       models.EventStatus
	AttemptCount int
	Note         string
	At           time.Time
}

type ProcessedEventRepository interface {
	// ClaimEvent inserts or re-claims the row for p.EventID. It returns (nil, nil) when the
	// event is already claimed or succeeded.
	ClaimEvent(ctx context.Context, p ClaimParams) (*models.ProcessedEvent, error)
	CompleteEvent(ctx context.Context, p CompleteParams) error
	GetProcessedEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error)
	ListProcessedEvents(ctx context.Context, workspaceID int64, status models.EventStatus, limit int) ([]*models.ProcessedEvent, error)
}

type processedEventRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewProcessedEventRepository(db *sqlx.DB, logger *zap.Logger) ProcessedEventRepository {
	return &processedEventRepository{db: db, logger: logger}
}

const processedEventColumns = `event_id, workspace_id, rule_id, status, attempt_count, last_attempt_at, note, event_payload, created_at`

func (r *processedEventRepository) ClaimEvent(ctx context.Context, p ClaimParams) (*models.ProcessedEvent, error) {
	var payload any
	if p.Payload != nil {
		// sent as text so lib/pq does not encode it as bytea
		payload = string(p.Payload)
	}

	query := r.db.Rebind(`INSERT INTO processed_events (event_id, workspace_id, rule_id, status, attempt_count, last_attempt_at, note, event_payload, created_at)
		VALUES (?, ?, ?, ?, 0, ?, '', ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
			status = excluded.status,
			workspace_id = excluded.workspace_id,
			rule_id = excluded.rule_id,
			last_attempt_at = excluded.last_attempt_at,
			event_payload = excluded.event_payload
		WHERE processed_events.status = ?
			OR (processed_events.status = ? AND processed_events.last_attempt_at < ?)
		RETURNING ` + processedEventColumns)

	var ev models.ProcessedEvent
	err := r.db.QueryRowxContext(ctx, query,
		p.EventID, p.WorkspaceID, p.RuleID, models.EventStatusClaimed, p.At, payload, p.At,
		models.EventStatusFailed, models.EventStatusClaimed, p.StaleBefore,
	).StructScan(&ev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim event %s: %w", p.EventID, err)
	}
	return &ev, nil
}

func (r *processedEventRepository) CompleteEvent(ctx context.Context, p CompleteParams) error {
	query := r.db.Rebind(`UPDATE processed_events
		SET status = ?, rule_id = ?, attempt_count = ?, last_attempt_at = ?, note = ?
		WHERE event_id = ? AND status = ? AND last_attempt_at = ?`)
	result, err := r.db.ExecContext(ctx, query,
		p.Status, p.RuleID, p.AttemptCount, p.At, p.Note,
		p.EventID, models.EventStatusClaimed, p.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete event %s: %w", p.EventID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *processedEventRepository) GetProcessedEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	var ev models.ProcessedEvent
	query := r.db.Rebind(`SELECT ` + processedEventColumns + ` FROM processed_events WHERE event_id = ?`)
	err := r.db.GetContext(ctx, &ev, query, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *processedEventRepository) ListProcessedEvents(ctx context.Context, workspaceID int64, status models.EventStatus, limit int) ([]*models.ProcessedEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + processedEventColumns + ` FROM processed_events WHERE workspace_id = ?`
	args := []any{workspaceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY last_attempt_at DESC LIMIT ?`
	args = append(args, limit)

	var events []*models.ProcessedEvent
	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list processed events: %w", err)
	}
	return events, nil
}
