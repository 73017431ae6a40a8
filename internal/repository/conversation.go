package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

type ConversationRepository interface {
	// GetOrCreateConversation returns the conversation for the participant, creating it on first
	// contact, loaded with its most recent historyLimit messages and all topics.
	GetOrCreateConversation(ctx context.Context, workspaceID int64, participantID, participantHandle string, historyLimit int) (*models.ConversationContext, error)
	GetConversation(ctx context.Context, workspaceID int64, conversationID string, historyLimit int) (*models.ConversationContext, error)
	ListConversations(ctx context.Context, workspaceID int64, limit int) ([]*models.ConversationContext, error)
	AppendMessages(ctx context.Context, conversationID string, messages []models.ConversationMessage) error
	AddTopics(ctx context.Context, conversationID string, topics []string) error
}

type conversationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewConversationRepository(db *sqlx.DB, logger *zap.Logger) ConversationRepository {
	return &conversationRepository{db: db, logger: logger}
}

const conversationColumns = `conversation_id, workspace_id, participant_external_id, participant_handle, created_at, updated_at`

func (r *conversationRepository) GetOrCreateConversation(ctx context.Context, workspaceID int64, participantID, participantHandle string, historyLimit int) (*models.ConversationContext, error) {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO conversations (` + conversationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, participant_external_id) DO UPDATE SET
			participant_handle = CASE WHEN excluded.participant_handle <> '' THEN excluded.participant_handle ELSE conversations.participant_handle END
		RETURNING ` + conversationColumns)

	var conv models.ConversationContext
	err := r.db.QueryRowxContext(ctx, query, uuid.NewString(), workspaceID, participantID, participantHandle, now, now).StructScan(&conv)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create conversation: %w", err)
	}

	if err := r.loadHistory(ctx, &conv, historyLimit); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) GetConversation(ctx context.Context, workspaceID int64, conversationID string, historyLimit int) (*models.ConversationContext, error) {
	var conv models.ConversationContext
	query := r.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE conversation_id = ? AND workspace_id = ?`)
	err := r.db.GetContext(ctx, &conv, query, conversationID, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadHistory(ctx, &conv, historyLimit); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) ListConversations(ctx context.Context, workspaceID int64, limit int) ([]*models.ConversationContext, error) {
	if limit <= 0 {
		limit = 50
	}
	var convs []*models.ConversationContext
	query := r.db.Rebind(`SELECT ` + conversationColumns + ` FROM conversations
		WHERE workspace_id = ? ORDER BY updated_at DESC, conversation_id LIMIT ?`)
	if err := r.db.SelectContext(ctx, &convs, query, workspaceID, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// loadHistory fills in the last limit messages in chronological order, and the topic set.
func (r *conversationRepository) loadHistory(ctx context.Context, conv *models.ConversationContext, limit int) error {
	if limit <= 0 {
		limit = 20
	}

	msgQuery := r.db.Rebind(`SELECT id, conversation_id, sender, channel, text, created_at FROM (
			SELECT id, conversation_id, sender, channel, text, created_at
			FROM conversation_messages WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) recent ORDER BY id ASC`)
	if err := r.db.SelectContext(ctx, &conv.Messages, msgQuery, conv.ConversationID, limit); err != nil {
		return fmt.Errorf("failed to load conversation messages: %w", err)
	}

	topicQuery := r.db.Rebind(`SELECT topic FROM conversation_topics WHERE conversation_id = ? ORDER BY created_at, topic`)
	if err := r.db.SelectContext(ctx, &conv.ExtractedTopics, topicQuery, conv.ConversationID); err != nil {
		return fmt.Errorf("failed to load conversation topics: %w", err)
	}
	return nil
}

func (r *conversationRepository) AppendMessages(ctx context.Context, conversationID string, messages []models.ConversationMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := tx.Rebind(`INSERT INTO conversation_messages (conversation_id, sender, channel, text, created_at) VALUES (?, ?, ?, ?, ?)`)
	last := time.Time{}
	for _, m := range messages {
		at := m.At
		if at.IsZero() {
			at = time.Now()
		}
		at = at.UTC()
		if at.After(last) {
			last = at
		}
		if _, err := tx.ExecContext(ctx, insert, conversationID, m.Sender, m.Channel, m.Text, at); err != nil {
			return fmt.Errorf("failed to append conversation message: %w", err)
		}
	}

	touch := tx.Rebind(`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`)
	if _, err := tx.ExecContext(ctx, touch, last, conversationID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *conversationRepository) AddTopics(ctx context.Context, conversationID string, topics []string) error {
	query := r.db.Rebind(`INSERT INTO conversation_topics (conversation_id, topic, created_at) VALUES (?, ?, ?)
		ON CONFLICT (conversation_id, topic) DO NOTHING`)
	now := time.Now().UTC()
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, query, conversationID, topic, now); err != nil {
			return fmt.Errorf("failed to add topic %q: %w", topic, err)
		}
	}
	return nil
}
