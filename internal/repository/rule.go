package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type RuleRepository interface {
	CreateRule(ctx context.Context, rule *models.AutomationRule) error
	ListActiveRules(ctx context.Context, workspaceID int64) ([]*models.AutomationRule, error)
	// CountActiveRules returns the number of active rules per workspace; workspaces without
	// any are absent from the map.
	CountActiveRules(ctx context.Context, workspaceIDs []int64) (map[int64]int, error)
}

type ruleRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRuleRepository(db *sqlx.DB, logger *zap.Logger) RuleRepository {
	return &ruleRepository{db: db, logger: logger}
}

func (r *ruleRepository) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}
	query := r.db.Rebind(`INSERT INTO automation_rules (workspace_id, name, kind, is_active, triggers, action, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	return r.db.QueryRowxContext(ctx, query, rule.WorkspaceID, rule.Name, rule.Kind, rule.IsActive,
		rule.Triggers, rule.Action, rule.CreatedAt, rule.UpdatedAt).Scan(&rule.ID)
}

func (r *ruleRepository) ListActiveRules(ctx context.Context, workspaceID int64) ([]*models.AutomationRule, error) {
	var rules []*models.AutomationRule
	query := r.db.Rebind(`SELECT id, workspace_id, name, kind, is_active, triggers, action, created_at, updated_at
		FROM automation_rules
		WHERE workspace_id = ? AND is_active = ?
		ORDER BY updated_at DESC, id DESC`)
	if err := r.db.SelectContext(ctx, &rules, query, workspaceID, true); err != nil {
		return nil, fmt.Errorf("failed to list rules for workspace %d: %w", workspaceID, err)
	}
	return rules, nil
}

func (r *ruleRepository) CountActiveRules(ctx context.Context, workspaceIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(workspaceIDs))
	if len(workspaceIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`SELECT workspace_id, COUNT(*) AS rule_count
		FROM automation_rules
		WHERE is_active = ? AND workspace_id IN (?)
		GROUP BY workspace_id`, true, workspaceIDs)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		WorkspaceID int64 `db:"workspace_id"`
		RuleCount   int   `db:"rule_count"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to count active rules: %w", err)
	}

	for _, row := range rows {
		counts[row.WorkspaceID] = row.RuleCount
	}
	return counts, nil
}
