package models

import "time"

// ChangeType is the kind of row change carried by a ChangeEvent.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
)

const (
	TableConversations        = "conversations"
	TableConversationMessages = "conversation_messages"
)

// ChangeEvent is pushed to realtime subscribers when a row changes.
type ChangeEvent struct {
	Type            ChangeType           `json:"type"`
	Table           string               `json:"table"`
	Topic           string               `json:"topic"`
	Conversation    *Conversation        `json:"conversation,omitempty"`
	Message         *ConversationMessage `json:"message,omitempty"`
	CommitTimestamp time.Time            `json:"commit_timestamp"`
}

// ConversationsTopic scopes conversation changes to one participant.
func ConversationsTopic(userID string) string {
	return TableConversations + ":user:" + userID
}

// MessagesTopic scopes message inserts to one conversation.
func MessagesTopic(conversationID string) string {
	return TableConversationMessages + ":conversation_id=" + conversationID
}
