package msgsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"robot-market/internal/models"
)

// ResolveOrCreate returns the conversation for an exact buyer, seller and
// listing triple, creating it when the lookup finds no row. A create that
// loses a race to another client resolves to the row that won.
func (s *Store) ResolveOrCreate(ctx context.Context, buyerID, sellerID, listingID string) (string, error) {
	if !s.session.Authenticated() {
		return "", ErrAuthRequired
	}
	if buyerID == sellerID {
		return "", ErrSelfConversation
	}

	conv, err := s.backend.FindConversation(ctx, buyerID, sellerID, listingID)
	switch {
	case err == nil:
		s.rememberConversation(ctx, conv)
		return conv.ID, nil
	case !errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("lookup conversation: %w", err)
	}

	created, err := s.backend.CreateConversation(ctx, buyerID, sellerID, listingID)
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict) && created.ID != "":
		s.logger.Info("conversation created concurrently, using existing row", "conversation_id", created.ID)
	case errors.Is(err, ErrConflict):
		winner, findErr := s.backend.FindConversation(ctx, buyerID, sellerID, listingID)
		if findErr != nil {
			return "", fmt.Errorf("lookup conversation after conflict: %w", findErr)
		}
		created = winner
	default:
		return "", fmt.Errorf("create conversation: %w", err)
	}

	s.rememberConversation(ctx, created)
	return created.ID, nil
}

// rememberConversation adds a resolved conversation to the directory so a
// following send can update its preview.
func (s *Store) rememberConversation(ctx context.Context, conv models.Conversation) {
	entry := s.resolveEntry(ctx, conv)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.upsertEntryLocked(entry)
	}
}

// ContactSeller opens (or reuses) the session user's conversation with a seller
// about a listing and sends the first message into it.
func (s *Store) ContactSeller(ctx context.Context, listingID, sellerID, content string) (string, Message, error) {
	if !s.session.Authenticated() {
		return "", Message{}, ErrAuthRequired
	}
	if strings.TrimSpace(content) == "" {
		return "", Message{}, ErrEmptyContent
	}

	conversationID, err := s.ResolveOrCreate(ctx, s.session.UserID, sellerID, listingID)
	if err != nil {
		return "", Message{}, err
	}
	msg, err := s.Send(ctx, conversationID, content)
	if err != nil {
		return conversationID, Message{}, err
	}
	return conversationID, msg, nil
}
