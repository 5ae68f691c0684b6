package msgsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robot-market/internal/models"
)

func TestResolveOrCreateCreatesThenReuses(t *testing.T) {
	backend := newFakeBackend("A")
	backend.profiles["B"] = models.Profile{ID: "B", Username: "bee"}
	store := newTestStore(backend, "A")

	first, err := store.ResolveOrCreate(context.Background(), "A", "B", "L")
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := store.ResolveOrCreate(context.Background(), "A", "B", "L")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.called("CreateConversation"))

	entry, ok := store.Conversation(first)
	require.True(t, ok)
	assert.Equal(t, "bee", entry.Counterparty.Name)
}

func TestResolveOrCreateConflictResolvesToExisting(t *testing.T) {
	backend := newFakeBackend("A")
	existing := backend.addConversation("c-won", "A", "B", "L")
	// The lookup misses as if a concurrent client created the row right after it.
	backend.hideOnFind = 1
	store := newTestStore(backend, "A")

	id, err := store.ResolveOrCreate(context.Background(), "A", "B", "L")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, id)
	assert.Equal(t, 1, backend.called("CreateConversation"))
	assert.Len(t, backend.conversations, 1)
}

func TestResolveOrCreatePropagatesLookupFailure(t *testing.T) {
	backend := newFakeBackend("A")
	backend.findErr = errors.New("timeout")
	store := newTestStore(backend, "A")

	_, err := store.ResolveOrCreate(context.Background(), "A", "B", "L")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Zero(t, backend.called("CreateConversation"))
}

func TestResolveOrCreateRejectsSelfAndAnonymous(t *testing.T) {
	_, err := newTestStore(newFakeBackend("A"), "A").ResolveOrCreate(context.Background(), "A", "A", "L")
	assert.ErrorIs(t, err, ErrSelfConversation)

	_, err = newTestStore(newFakeBackend(""), "").ResolveOrCreate(context.Background(), "A", "B", "L")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestContactSellerResolvesAndSends(t *testing.T) {
	backend := newFakeBackend("A")
	store := newTestStore(backend, "A")

	id, msg, err := store.ContactSeller(context.Background(), "L", "B", "Is it MT5 ready?")
	require.NoError(t, err)
	assert.Equal(t, id, msg.ConversationID)
	assert.Equal(t, SenderSelf, msg.Sender)

	entry, ok := store.Conversation(id)
	require.True(t, ok)
	assert.Equal(t, "Is it MT5 ready?", entry.Preview)
	assert.Equal(t, UnknownUserName, entry.Counterparty.Name)
}

func TestContactSellerBlankContentMakesNoCalls(t *testing.T) {
	backend := newFakeBackend("A")
	store := newTestStore(backend, "A")

	_, _, err := store.ContactSeller(context.Background(), "L", "B", "  ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Zero(t, backend.called("FindConversation"))
}
