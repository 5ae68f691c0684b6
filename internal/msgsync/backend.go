package msgsync

import (
	"context"
	"errors"

	"robot-market/internal/models"
)

var (
	ErrAuthRequired     = errors.New("msgsync: authentication required")
	ErrEmptyContent     = errors.New("msgsync: message content is empty")
	ErrNotFound         = errors.New("msgsync: not found")
	ErrConflict         = errors.New("msgsync: conflict")
	ErrSelfConversation = errors.New("msgsync: buyer and seller are the same user")
	ErrClosed           = errors.New("msgsync: store is closed")
)

// Subscription delivers realtime change events for one topic until closed.
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Close() error
}

// Backend is the remote data and realtime service, scoped to the session it was
// authenticated with.
type Backend interface {
	// ListConversationRows returns the conversations the session user takes part in.
	ListConversationRows(ctx context.Context) ([]models.Conversation, error)
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	// LatestMessage returns ErrNotFound when the conversation has no messages.
	LatestMessage(ctx context.Context, conversationID string) (models.ConversationMessage, error)
	ListMessageRows(ctx context.Context, conversationID string) ([]models.ConversationMessage, error)
	InsertMessage(ctx context.Context, conversationID, senderID, content string) (models.ConversationMessage, error)
	// FindConversation returns ErrNotFound when no row matches the triple.
	FindConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error)
	// CreateConversation returns the existing row together with ErrConflict when
	// the triple is already taken.
	CreateConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error)
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}
