package msgsync

import (
	"context"
	"fmt"

	"robot-market/internal/models"
)

func messageFromRow(row models.ConversationMessage) Message {
	return Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		Content:        row.Content,
		CreatedAt:      row.CreatedAt,
	}
}

// LoadMessages replaces the cached timeline with the persisted history of a
// conversation. Messages still pending in this store stay at the tail.
func (s *Store) LoadMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if !s.session.Authenticated() {
		return nil, ErrAuthRequired
	}

	rows, err := s.backend.ListMessageRows(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	timeline := make([]Message, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}
		timeline = append(timeline, messageFromRow(row))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.timelines[conversationID] {
		if msg.Pending {
			timeline = append(timeline, msg)
		}
	}
	sortTimeline(timeline)
	s.timelines[conversationID] = timeline
	s.notifyLocked(Change{ConversationID: conversationID, Scope: ScopeTimeline})
	return s.classifiedLocked(conversationID), nil
}

// SubscribeMessages appends realtime message inserts of a conversation to its
// timeline. Close the returned Watch when the conversation is deselected.
func (s *Store) SubscribeMessages(ctx context.Context, conversationID string) (*Watch, error) {
	if !s.session.Authenticated() {
		return nil, ErrAuthRequired
	}
	return s.startWatch(ctx, models.MessagesTopic(conversationID), func(_ context.Context, ev models.ChangeEvent) {
		if ev.Table != models.TableConversationMessages || ev.Type != models.ChangeInsert || ev.Message == nil {
			return
		}
		if ev.Message.ConversationID != conversationID {
			return
		}
		s.applyInsert(*ev.Message)
	})
}

// applyInsert appends a persisted message unless a message with the same id is
// already cached. It reports whether the timeline changed.
func (s *Store) applyInsert(row models.ConversationMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.timelines[row.ConversationID]
	if indexOf(timeline, row.ID) >= 0 {
		return false
	}
	timeline = append(timeline, messageFromRow(row))
	sortTimeline(timeline)
	s.timelines[row.ConversationID] = timeline

	scope := ScopeTimeline
	if s.advancePreviewLocked(row.ConversationID, row.Content, row.CreatedAt) {
		scope |= ScopeDirectory
	}
	s.notifyLocked(Change{ConversationID: row.ConversationID, Scope: scope})
	return true
}
