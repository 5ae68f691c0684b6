package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"robot-market/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	FindByTriple(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error)
	CreateConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, robot_id, buyer_id, seller_id, created_at, updated_at`

// ListForUser returns every conversation the user takes part in, latest activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE buyer_id=$1 OR seller_id=$1
        ORDER BY updated_at DESC`
	convs := []models.Conversation{}
	if err := r.db.SelectContext(ctx, &convs, query, userID); err != nil {
		return nil, err
	}
	return convs, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// FindByTriple looks up the conversation for an exact (buyer, seller, robot) triple.
// A missing row is reported as ErrConversationNotFound.
func (r *ConversationRepo) FindByTriple(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations
        WHERE buyer_id=$1 AND seller_id=$2 AND robot_id=$3`, buyerID, sellerID, robotID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateConversation inserts a conversation. When the triple already exists the
// existing row is returned together with ErrConversationExists.
func (r *ConversationRepo) CreateConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `INSERT INTO conversations (buyer_id, seller_id, robot_id)
        VALUES ($1, $2, $3) RETURNING `+conversationColumns, buyerID, sellerID, robotID)
	if err == nil {
		return conv, nil
	}
	if !isUniqueViolation(err) {
		return models.Conversation{}, err
	}
	existing, findErr := r.FindByTriple(ctx, buyerID, sellerID, robotID)
	if findErr != nil {
		return models.Conversation{}, fmt.Errorf("load existing conversation: %w", findErr)
	}
	return existing, ErrConversationExists
}

// IsParticipant checks whether a user is the buyer or seller of the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (buyer_id=$2 OR seller_id=$2))`, conversationID, userID)
	return exists, err
}
