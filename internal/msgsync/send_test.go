package msgsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robot-market/internal/models"
)

func loadedStore(t *testing.T, backend *fakeBackend) *Store {
	t.Helper()
	backend.addConversation("c-1", "buyer", "seller", "r1")
	backend.addMessage("c-1", "seller", "welcome")
	store := newTestStore(backend, "buyer")
	_, err := store.ListConversations(context.Background())
	require.NoError(t, err)
	_, err = store.LoadMessages(context.Background(), "c-1")
	require.NoError(t, err)
	drainUpdates(store)
	return store
}

func TestSendOptimisticThenCommit(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	backend.insertGate = make(chan struct{})

	results := store.SendAsync(context.Background(), "c-1", "Hello")

	change := waitForChange(t, store, func(c Change) bool { return c.ConversationID == "c-1" })
	assert.True(t, change.Scope.Has(ScopeTimeline))
	assert.True(t, change.Scope.Has(ScopeDirectory))

	msgs := store.Messages("c-1")
	require.Len(t, msgs, 2)
	pending := msgs[1]
	assert.True(t, strings.HasPrefix(pending.ID, "temp-"))
	assert.True(t, IsTempID(pending.ID))
	assert.Equal(t, "Hello", pending.Content)
	assert.Equal(t, SenderSelf, pending.Sender)
	assert.True(t, pending.Pending)
	entry, _ := store.Conversation("c-1")
	assert.Equal(t, "Hello", entry.Preview)

	close(backend.insertGate)
	res := <-results
	require.NoError(t, res.Err)
	assert.Equal(t, StateCommitted, res.State)
	assert.False(t, IsTempID(res.Message.ID))

	msgs = store.Messages("c-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, res.Message.ID, msgs[1].ID)
	assert.False(t, msgs[1].Pending)

	msgs, err := store.LoadMessages(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.False(t, IsTempID(msgs[1].ID))
	assert.Equal(t, 1, backend.called("InsertMessage"))
}

func TestSendBlankContentIsNoop(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	before := store.Messages("c-1")

	_, err := store.Send(context.Background(), "c-1", "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	res := <-store.SendAsync(context.Background(), "c-1", "\n\t")
	assert.ErrorIs(t, res.Err, ErrEmptyContent)
	assert.Equal(t, StateIdle, res.State)

	assert.Equal(t, before, store.Messages("c-1"))
	assert.Zero(t, backend.called("InsertMessage"))
	select {
	case c := <-store.Updates():
		t.Fatalf("unexpected change %+v", c)
	default:
	}
}

func TestSendRequiresSession(t *testing.T) {
	backend := newFakeBackend("")
	store := newTestStore(backend, "")

	_, err := store.Send(context.Background(), "c-1", "hi")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Zero(t, backend.called("InsertMessage"))
}

func TestSendFailureRestoresSnapshot(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	boom := errors.New("policy rejected")
	backend.insertErr["nope"] = boom

	beforeMsgs := store.Messages("c-1")
	beforeEntry, _ := store.Conversation("c-1")

	_, err := store.Send(context.Background(), "c-1", "nope")
	require.ErrorIs(t, err, boom)

	assert.Equal(t, beforeMsgs, store.Messages("c-1"))
	afterEntry, _ := store.Conversation("c-1")
	assert.Equal(t, beforeEntry, afterEntry)
}

func TestRollbackTwiceIsNoop(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	beforeMsgs := store.Messages("c-1")
	beforeEntry, _ := store.Conversation("c-1")

	op, err := store.beginSend("c-1", "draft")
	require.NoError(t, err)
	assert.Equal(t, StateOptimistic, op.state)
	assert.Len(t, store.Messages("c-1"), len(beforeMsgs)+1)

	op.rollback()
	assert.Equal(t, StateRolledBack, op.state)
	assert.Equal(t, beforeMsgs, store.Messages("c-1"))
	drainUpdates(store)

	op.rollback()
	assert.Equal(t, StateRolledBack, op.state)
	assert.Equal(t, beforeMsgs, store.Messages("c-1"))
	afterEntry, _ := store.Conversation("c-1")
	assert.Equal(t, beforeEntry, afterEntry)
	select {
	case c := <-store.Updates():
		t.Fatalf("second rollback published %+v", c)
	default:
	}
}

func TestRollbackLeavesNewerDirectoryStateAlone(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)

	op, err := store.beginSend("c-1", "draft")
	require.NoError(t, err)

	newer := models.ConversationMessage{ID: "m-new", ConversationID: "c-1", SenderID: "seller", Content: "from seller", CreatedAt: baseTime.Add(48 * time.Hour)}
	require.True(t, store.applyInsert(newer))

	op.rollback()
	entry, _ := store.Conversation("c-1")
	assert.Equal(t, "from seller", entry.Preview)
	msgs := store.Messages("c-1")
	assert.Equal(t, "m-new", msgs[len(msgs)-1].ID)
	for _, m := range msgs {
		assert.False(t, IsTempID(m.ID))
	}
}

func TestCommitAfterRealtimeEchoKeepsOneCopy(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	defer store.Close()
	_, err := store.SubscribeMessages(context.Background(), "c-1")
	require.NoError(t, err)

	backend.echoInserts = true
	backend.insertGate = make(chan struct{})
	results := store.SendAsync(context.Background(), "c-1", "echoed")

	// The echo lands while the insert call has not returned yet.
	require.Eventually(t, func() bool { return len(store.Messages("c-1")) == 3 }, 2*time.Second, 5*time.Millisecond)
	close(backend.insertGate)
	res := <-results
	require.NoError(t, res.Err)

	msgs := store.Messages("c-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, res.Message.ID, msgs[1].ID)
	assert.Equal(t, "echoed", msgs[1].Content)
}

func TestConcurrentSendsAreIndependent(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	backend.insertErr["fail"] = errors.New("rejected")

	okResult := store.SendAsync(context.Background(), "c-1", "ok")
	failResult := store.SendAsync(context.Background(), "c-1", "fail")

	assert.NoError(t, (<-okResult).Err)
	failed := <-failResult
	assert.Error(t, failed.Err)
	assert.Equal(t, StateRolledBack, failed.State)

	msgs := store.Messages("c-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "ok", msgs[1].Content)
	assert.False(t, msgs[1].Pending)
}

func TestOverlappingFailedSendsRestoreOriginalPreview(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	beforeMsgs := store.Messages("c-1")
	beforeEntry, _ := store.Conversation("c-1")

	first, err := store.beginSend("c-1", "first draft")
	require.NoError(t, err)
	second, err := store.beginSend("c-1", "second draft")
	require.NoError(t, err)

	first.rollback()
	entry, _ := store.Conversation("c-1")
	assert.Equal(t, "second draft", entry.Preview)

	second.rollback()
	entry, _ = store.Conversation("c-1")
	assert.Equal(t, beforeEntry, entry)
	assert.Equal(t, beforeMsgs, store.Messages("c-1"))
	assert.Empty(t, store.inflight)
	assert.Empty(t, store.baselines)
}

func TestRollbackShowsRemainingPendingMessage(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	beforeEntry, _ := store.Conversation("c-1")

	first, err := store.beginSend("c-1", "first draft")
	require.NoError(t, err)
	second, err := store.beginSend("c-1", "second draft")
	require.NoError(t, err)

	second.rollback()
	entry, _ := store.Conversation("c-1")
	assert.Equal(t, "first draft", entry.Preview)
	msgs := store.Messages("c-1")
	require.NotEmpty(t, msgs)
	assert.Equal(t, first.temp.ID, msgs[len(msgs)-1].ID)

	first.rollback()
	entry, _ = store.Conversation("c-1")
	assert.Equal(t, beforeEntry, entry)
	for _, m := range store.Messages("c-1") {
		assert.False(t, m.Pending)
	}
}

func TestCommitThenOverlappingFailureShowsCommittedMessage(t *testing.T) {
	backend := newFakeBackend("buyer")
	store := loadedStore(t, backend)
	backend.insertErr["second draft"] = errors.New("rejected")

	first, err := store.beginSend("c-1", "first draft")
	require.NoError(t, err)
	second, err := store.beginSend("c-1", "second draft")
	require.NoError(t, err)

	sent, err := first.persist(context.Background())
	require.NoError(t, err)
	_, err = second.persist(context.Background())
	require.Error(t, err)

	entry, _ := store.Conversation("c-1")
	assert.Equal(t, "first draft", entry.Preview)
	msgs := store.Messages("c-1")
	require.NotEmpty(t, msgs)
	assert.Equal(t, sent.ID, msgs[len(msgs)-1].ID)
}

func TestSendStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "persisting", StatePersisting.String())
	assert.Equal(t, "rolled_back", StateRolledBack.String())
}
