package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"robot-market/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID string, senderID string, content string) (models.ConversationMessage, models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.ConversationMessage, error)
	LatestMessage(ctx context.Context, conversationID string) (models.ConversationMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, content, created_at`

// CreateMessage stores a message and bumps the conversation's last activity in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID string, senderID string, content string) (models.ConversationMessage, models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ConversationMessage{}, models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.ConversationMessage
	if err = tx.GetContext(ctx, &msg, `INSERT INTO conversation_messages (conversation_id, sender_id, content)
        VALUES ($1, $2, $3) RETURNING `+messageColumns, conversationID, senderID, content); err != nil {
		return models.ConversationMessage{}, models.Conversation{}, fmt.Errorf("insert message: %w", err)
	}

	var conv models.Conversation
	if err = tx.GetContext(ctx, &conv, `UPDATE conversations SET updated_at = $2 WHERE id = $1
        RETURNING `+conversationColumns, conversationID, msg.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrConversationNotFound
		}
		return models.ConversationMessage{}, models.Conversation{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.ConversationMessage{}, models.Conversation{}, err
	}
	return msg, conv, nil
}

// ListMessages returns all messages of a conversation, oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.ConversationMessage, error) {
	msgs := []models.ConversationMessage{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM conversation_messages
        WHERE conversation_id=$1
        ORDER BY created_at ASC, id ASC`, conversationID)
	return msgs, err
}

// LatestMessage returns the most recently created message.
func (r *MessageRepo) LatestMessage(ctx context.Context, conversationID string) (models.ConversationMessage, error) {
	var msg models.ConversationMessage
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM conversation_messages
        WHERE conversation_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT 1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationMessage{}, ErrMessageNotFound
	}
	return msg, err
}
