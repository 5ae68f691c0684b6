package msgsync

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"robot-market/internal/models"
)

// ListConversations re-resolves the directory from the backend and replaces the
// cached one. On failure the cache is left as it was and an empty list is
// returned with the error.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	if !s.session.Authenticated() {
		return nil, ErrAuthRequired
	}

	rows, err := s.backend.ListConversationRows(ctx)
	if err != nil {
		return []Conversation{}, fmt.Errorf("list conversations: %w", err)
	}

	entries := make([]Conversation, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, row := range rows {
		g.Go(func() error {
			entries[i] = s.resolveEntry(gctx, row)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return []Conversation{}, fmt.Errorf("resolve conversations: %w", err)
	}
	sortDirectory(entries)

	s.mu.Lock()
	s.directory = make(map[string]Conversation, len(entries))
	for _, entry := range entries {
		s.directory[entry.ID] = entry
	}
	s.notifyLocked(Change{Scope: ScopeDirectory})
	s.mu.Unlock()

	return entries, nil
}

// WatchConversations re-resolves the directory whenever a conversation of the
// session user is inserted or updated.
func (s *Store) WatchConversations(ctx context.Context) (*Watch, error) {
	if !s.session.Authenticated() {
		return nil, ErrAuthRequired
	}
	return s.startWatch(ctx, models.ConversationsTopic(s.session.UserID), func(ctx context.Context, ev models.ChangeEvent) {
		if ev.Table != models.TableConversations {
			return
		}
		if _, err := s.ListConversations(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("refresh conversations after change", "error", err)
		}
	})
}

// resolveEntry never fails: a missing profile becomes the unknown-user
// placeholder and a missing preview becomes the empty string.
func (s *Store) resolveEntry(ctx context.Context, row models.Conversation) Conversation {
	counterpartyID := row.CounterpartyOf(s.session.UserID)
	entry := Conversation{
		ID:           row.ID,
		RobotID:      row.RobotID,
		BuyerID:      row.BuyerID,
		SellerID:     row.SellerID,
		LastActivity: row.UpdatedAt,
	}

	profile, err := s.backend.GetProfile(ctx, counterpartyID)
	if err != nil {
		s.logger.Debug("counterparty profile unavailable", "conversation_id", row.ID, "user_id", counterpartyID, "error", err)
		entry.Counterparty = unknownCounterparty(counterpartyID)
	} else {
		entry.Counterparty = counterpartyFromProfile(counterpartyID, profile.Username, profile.AvatarURL)
	}

	latest, err := s.backend.LatestMessage(ctx, row.ID)
	switch {
	case err == nil:
		entry.Preview = latest.Content
	case errors.Is(err, ErrNotFound):
	default:
		s.logger.Debug("latest message unavailable", "conversation_id", row.ID, "error", err)
	}
	return entry
}

// upsertEntryLocked keeps the newest activity when a row arrives for an entry
// already in the directory.
func (s *Store) upsertEntryLocked(entry Conversation) {
	if existing, ok := s.directory[entry.ID]; ok && existing.LastActivity.After(entry.LastActivity) {
		entry.Preview = existing.Preview
		entry.LastActivity = existing.LastActivity
	}
	s.directory[entry.ID] = entry
	s.notifyLocked(Change{ConversationID: entry.ID, Scope: ScopeDirectory})
}
