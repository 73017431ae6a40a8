package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type WorkspaceRepository interface {
	CreateWorkspace(ctx context.Context, ws *models.Workspace) error
	GetWorkspaceByID(ctx context.Context, id int64) (*models.Workspace, error)
}

type workspaceRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewWorkspaceRepository(db *sqlx.DB, logger *zap.Logger) WorkspaceRepository {
	return &workspaceRepository{db: db, logger: logger}
}

func (r *workspaceRepository) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}
	query := r.db.Rebind(`INSERT INTO workspaces (owner_id, name, credit_balance, is_default, is_disabled, created_at)
	          VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	return r.db.QueryRowxContext(ctx, query, ws.OwnerID, ws.Name, ws.CreditBalance, ws.IsDefault, ws.IsDisabled, ws.CreatedAt).Scan(&ws.ID)
}

func (r *workspaceRepository) GetWorkspaceByID(ctx context.Context, id int64) (*models.Workspace, error) {
	var ws models.Workspace
	query := r.db.Rebind(`SELECT id, owner_id, name, credit_balance, is_default, is_disabled, created_at FROM workspaces WHERE id = ?`)
	err := r.db.GetContext(ctx, &ws, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ws, nil
}
