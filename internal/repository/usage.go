package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type UsageRepository interface {
	GetUsage(ctx context.Context, ruleID int64, dateKey string) (int, error)
	// IncrementUsage atomically adds one to the counter and returns the new value.
	IncrementUsage(ctx context.Context, ruleID int64, dateKey string) (int, error)
	// ReserveUsage adds one to the counter only while it is below limit. It reports false,
	// leaving the counter untouched, when the limit is already reached.
	ReserveUsage(ctx context.Context, ruleID int64, dateKey string, limit int) (bool, error)
	// ReleaseUsage gives back a reservation that was not used. The counter never goes below zero.
	ReleaseUsage(ctx context.Context, ruleID int64, dateKey string) error
}

type usageRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewUsageRepository(db *sqlx.DB, logger *zap.Logger) UsageRepository {
	return &usageRepository{db: db, logger: logger}
}

func (r *usageRepository) GetUsage(ctx context.Context, ruleID int64, dateKey string) (int, error) {
	var count int
	query := r.db.Rebind(`SELECT count FROM daily_rule_usage WHERE rule_id = ? AND date_key = ?`)
	err := r.db.GetContext(ctx, &count, query, ruleID, dateKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get usage for rule %d: %w", ruleID, err)
	}
	return count, nil
}

func (r *usageRepository) IncrementUsage(ctx context.Context, ruleID int64, dateKey string) (int, error) {
	var count int
	query := r.db.Rebind(`INSERT INTO daily_rule_usage (rule_id, date_key, count) VALUES (?, ?, 1)
		ON CONFLICT (rule_id, date_key) DO UPDATE SET count = daily_rule_usage.count + 1
		RETURNING count`)
	if err := r.db.QueryRowxContext(ctx, query, ruleID, dateKey).Scan(&count); err != nil {
		r.logger.Error("Failed to increment rule usage",
			zap.Int64("rule_id", ruleID), zap.String("date_key", dateKey), zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *usageRepository) ReserveUsage(ctx context.Context, ruleID int64, dateKey string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	var count int
	// the conflict update is skipped, and no row returned, once count has reached limit
	query := r.db.Rebind(`INSERT INTO daily_rule_usage (rule_id, date_key, count) VALUES (?, ?, 1)
		ON CONFLICT (rule_id, date_key) DO UPDATE SET count = daily_rule_usage.count + 1
		WHERE daily_rule_usage.count < ?
		RETURNING count`)
	err := r.db.QueryRowxContext(ctx, query, ruleID, dateKey, limit).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to reserve usage for rule %d: %w", ruleID, err)
	}
	return true, nil
}

func (r *usageRepository) ReleaseUsage(ctx context.Context, ruleID int64, dateKey string) error {
	query := r.db.Rebind(`UPDATE daily_rule_usage SET count = count - 1
		WHERE rule_id = ? AND date_key = ? AND count > 0`)
	if _, err := r.db.ExecContext(ctx, query, ruleID, dateKey); err != nil {
		return fmt.Errorf("failed to release usage for rule %d: %w", ruleID, err)
	}
	return nil
}
