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

type AccountRepository interface {
	CreateAccount(ctx context.Context, acc *models.SocialAccount) error
	GetAccountByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	// FindActiveByExternalID returns every active account, in a non-disabled workspace, whose
	// external account id or (when given) external page id matches.
	FindActiveByExternalID(ctx context.Context, externalAccountID, externalPageID string) ([]*models.SocialAccount, error)
	DeactivateAccount(ctx context.Context, id int64) error
	// SetAccessToken stores a sealed token and reactivates the account.
	SetAccessToken(ctx context.Context, id int64, sealed string) error
}

type accountRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewAccountRepository(db *sqlx.DB, logger *zap.Logger) AccountRepository {
	return &accountRepository{db: db, logger: logger}
}

const accountColumns = `a.id, a.workspace_id, a.platform, a.external_account_id, a.external_page_id, a.username,
	a.access_token_encrypted, a.is_active, a.created_at, a.updated_at`

func (r *accountRepository) CreateAccount(ctx context.Context, acc *models.SocialAccount) error {
	now := time.Now().UTC()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	if acc.UpdatedAt.IsZero() {
		acc.UpdatedAt = now
	}
	if acc.Platform == "" {
		acc.Platform = models.PlatformInstagram
	}
	query := r.db.Rebind(`INSERT INTO social_accounts (workspace_id, platform, external_account_id, external_page_id, username,
	          access_token_encrypted, is_active, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	return r.db.QueryRowxContext(ctx, query, acc.WorkspaceID, acc.Platform, acc.ExternalAccountID, acc.ExternalPageID,
		acc.Username, acc.AccessTokenEncrypted, acc.IsActive, acc.CreatedAt, acc.UpdatedAt).Scan(&acc.ID)
}

func (r *accountRepository) GetAccountByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	var acc models.SocialAccount
	query := r.db.Rebind(`SELECT ` + accountColumns + ` FROM social_accounts a WHERE a.id = ?`)
	err := r.db.GetContext(ctx, &acc, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

func (r *accountRepository) FindActiveByExternalID(ctx context.Context, externalAccountID, externalPageID string) ([]*models.SocialAccount, error) {
	match := `a.external_account_id = ?`
	args := []any{true, false, externalAccountID}
	if externalPageID != "" {
		match = `(a.external_account_id = ? OR a.external_page_id = ?)`
		args = append(args, externalPageID)
	}

	query := r.db.Rebind(`SELECT ` + accountColumns + `
		FROM social_accounts a
		JOIN workspaces w ON w.id = a.workspace_id
		WHERE a.is_active = ? AND w.is_disabled = ? AND ` + match + `
		ORDER BY a.id`)

	var accounts []*models.SocialAccount
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find accounts by external id: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) SetAccessToken(ctx context.Context, id int64, sealed string) error {
	query := r.db.Rebind(`UPDATE social_accounts SET access_token_encrypted = ?, is_active = ?, updated_at = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, sealed, true, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("social account not found: %d", id)
	}
	return nil
}

func (r *accountRepository) DeactivateAccount(ctx context.Context, id int64) error {
	query := r.db.Rebind(`UPDATE social_accounts SET is_active = ?, updated_at = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, false, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to deactivate social account", zap.Int64("account_id", id), zap.Error(err))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("social account not found: %d", id)
	}

	return nil
}
